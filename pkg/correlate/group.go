package correlate

import (
	"sort"
	"time"

	"github.com/ArcaneAIAutomation/opspilot/pkg/types"
)

// Group is one cluster of related incidents.
type Group struct {
	ID             string              `json:"id"`
	RootIncidentID string              `json:"rootIncidentId"`
	MemberIDs      []string            `json:"memberIds"`
	Titles         []string            `json:"titles"`
	Source         string              `json:"source"`
	Severity       types.Severity      `json:"severity"`
	CreatedAt      time.Time           `json:"createdAt"`
	LastActivityAt time.Time           `json:"lastActivityAt"`
	StormEmitted   bool                `json:"stormEmitted"`
	Tokens         map[string]struct{} `json:"-"`

	// TokenList mirrors Tokens for persistence; maps of struct{} do
	// not survive JSON.
	TokenList []string `json:"tokens"`
}

// recent reports whether the group saw activity inside the window.
func (g *Group) recent(now time.Time, window time.Duration) bool {
	return now.Sub(g.LastActivityAt) <= window
}

// full reports whether the group reached its member cap.
func (g *Group) full(maxSize int) bool {
	return len(g.MemberIDs) >= maxSize
}

// freeze fills TokenList from Tokens before persistence.
func (g *Group) freeze() {
	g.TokenList = make([]string, 0, len(g.Tokens))
	for tok := range g.Tokens {
		g.TokenList = append(g.TokenList, tok)
	}
	sort.Strings(g.TokenList)
}

// thaw rebuilds Tokens from TokenList after loading.
func (g *Group) thaw() {
	g.Tokens = make(map[string]struct{}, len(g.TokenList))
	for _, tok := range g.TokenList {
		g.Tokens[tok] = struct{}{}
	}
}
