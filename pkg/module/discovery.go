package module

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	oerrors "github.com/ArcaneAIAutomation/opspilot/pkg/errors"
	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// diskManifest is the on-disk plugin descriptor, manifest.json in each
// plugin directory.
type diskManifest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Category     string   `json:"category"`
	Description  string   `json:"description,omitempty"`
	Entry        string   `json:"entry,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// DiscoveredPlugin pairs a validated disk manifest with the factory
// registered for its id.
type DiscoveredPlugin struct {
	Manifest types.Manifest
	Dir      string
	Factory  Factory
}

// Discover walks the immediate subdirectories of dir, validating each
// manifest.json and binding it to a build-time registered factory.
// Errors are collected per plugin and never abort the walk; duplicate
// ids keep the first occurrence and log the rest.
func Discover(dir string, logger zerolog.Logger) ([]DiscoveredPlugin, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{oerrors.Configf("failed to read plugins directory %s: %v", dir, err)}
	}

	var (
		plugins []DiscoveredPlugin
		errs    []error
		seen    = make(map[string]string) // id -> plugin dir
	)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		pluginDir := filepath.Join(dir, name)
		plugin, err := discoverOne(pluginDir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prior, dup := seen[plugin.Manifest.ID]; dup {
			logger.Warn().Str("module", plugin.Manifest.ID).
				Str("kept", prior).Str("ignored", pluginDir).
				Msg("duplicate plugin id ignored")
			continue
		}
		seen[plugin.Manifest.ID] = pluginDir
		plugins = append(plugins, plugin)
	}
	return plugins, errs
}

func discoverOne(pluginDir string) (DiscoveredPlugin, error) {
	raw, err := os.ReadFile(filepath.Join(pluginDir, "manifest.json"))
	if err != nil {
		return DiscoveredPlugin{}, oerrors.Configf("plugin %s: failed to read manifest.json: %v", pluginDir, err)
	}

	var dm diskManifest
	if err := json.Unmarshal(raw, &dm); err != nil {
		return DiscoveredPlugin{}, oerrors.Configf("plugin %s: invalid manifest.json: %v", pluginDir, err)
	}
	if err := validateDiskManifest(dm); err != nil {
		return DiscoveredPlugin{}, oerrors.Configf("plugin %s: %v", pluginDir, err)
	}
	if dm.Entry != "" {
		if err := checkEntryContained(pluginDir, dm.Entry); err != nil {
			return DiscoveredPlugin{}, oerrors.Securityf("plugin %s: %v", pluginDir, err)
		}
	}

	factory, ok := LookupFactory(dm.ID)
	if !ok {
		return DiscoveredPlugin{}, oerrors.Configf(
			"plugin %s: no factory registered for module id %s", pluginDir, dm.ID)
	}

	manifest := types.Manifest{
		ID:           dm.ID,
		Version:      dm.Version,
		Category:     types.ModuleCategory(dm.Category),
		Description:  dm.Description,
		Dependencies: dm.Dependencies,
	}

	// The returned factory re-checks identity on every invocation: the
	// instance a factory builds must claim the id the disk manifest
	// promised.
	checked := func() (Module, error) {
		m, err := factory()
		if err != nil {
			return nil, err
		}
		if got := m.Manifest().ID; got != dm.ID {
			return nil, oerrors.Module(dm.ID, nil,
				"factory produced module with id %s, manifest declares %s", got, dm.ID)
		}
		return m, nil
	}
	return DiscoveredPlugin{Manifest: manifest, Dir: pluginDir, Factory: checked}, nil
}

func validateDiskManifest(dm diskManifest) error {
	if dm.ID == "" {
		return fmt.Errorf("manifest id is required")
	}
	if dm.Name == "" {
		return fmt.Errorf("manifest %s: name is required", dm.ID)
	}
	if dm.Version == "" {
		return fmt.Errorf("manifest %s: version is required", dm.ID)
	}
	if !types.ValidCategory(types.ModuleCategory(dm.Category)) {
		return fmt.Errorf("manifest %s: unknown category %q", dm.ID, dm.Category)
	}
	category, _, found := strings.Cut(dm.ID, ".")
	if !found || category != dm.Category {
		return fmt.Errorf("manifest id %q must have the form <category>.<name>", dm.ID)
	}
	return nil
}

// checkEntryContained rejects entry paths that resolve outside the
// plugin directory.
func checkEntryContained(pluginDir, entry string) error {
	if filepath.IsAbs(entry) {
		return fmt.Errorf("entry path %q must be relative", entry)
	}
	resolved := filepath.Clean(filepath.Join(pluginDir, entry))
	rel, err := filepath.Rel(pluginDir, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("entry path %q escapes the plugin directory", entry)
	}
	return nil
}
