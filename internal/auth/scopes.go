package auth

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// OAuth scopes understood by the engagement API.
const (
	ScopeEngagementRead  = "engagement:read"
	ScopeEngagementWrite = "engagement:write"
)

// implied lists scopes granted by holding another one.
var implied = map[string][]string{
	ScopeEngagementWrite: {ScopeEngagementRead},
}

// ScopeSet is the "scopes" claim. Tokens may carry it as a space separated string or
// as a JSON array; it is always issued as a string.
type ScopeSet map[string]struct{}

// NewScopeSet builds a set, skipping blanks.
func NewScopeSet(scopes ...string) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// Allows reports whether the set holds scope directly or through an implying scope.
func (s ScopeSet) Allows(scope string) bool {
	if _, ok := s[scope]; ok {
		return true
	}
	for held := range s {
		for _, granted := range implied[held] {
			if granted == scope {
				return true
			}
		}
	}
	return false
}

func (s ScopeSet) String() string {
	list := make([]string, 0, len(s))
	for scope := range s {
		list = append(list, scope)
	}
	sort.Strings(list)
	return strings.Join(list, " ")
}

func (s ScopeSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ScopeSet) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*s = NewScopeSet(strings.Fields(joined)...)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("scopes must be a string or a list of strings")
	}
	*s = NewScopeSet(list...)
	return nil
}
