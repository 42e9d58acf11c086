package assets

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/samber/lo"
)

// Settings is the model settings file (model3.json layout).
type Settings struct {
	Version        int            `json:"Version"`
	FileReferences FileReferences `json:"FileReferences"`
	Groups         []Group        `json:"Groups"`
}

type FileReferences struct {
	// Moc names the geometry buffer.
	Moc      string                 `json:"Moc"`
	Textures []string               `json:"Textures"`
	Physics  string                 `json:"Physics"`
	Motions  map[string][]MotionRef `json:"Motions"`
}

type MotionRef struct {
	File        string   `json:"File"`
	FadeInTime  *float32 `json:"FadeInTime,omitempty"`
	FadeOutTime *float32 `json:"FadeOutTime,omitempty"`
}

// Group binds a named role to a set of parameter ids.
type Group struct {
	Target string   `json:"Target"`
	Name   string   `json:"Name"`
	IDs    []string `json:"Ids"`
}

const (
	GroupEyeBlink = "EyeBlink"
	GroupLipSync  = "LipSync"
)

func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse model settings: %w", err)
	}
	return &s, nil
}

// GroupIDs returns the parameter ids of the named group, or nil.
func (s *Settings) GroupIDs(name string) []string {
	g, ok := lo.Find(s.Groups, func(g Group) bool {
		return g.Name == name && (g.Target == "" || g.Target == "Parameter")
	})
	if !ok {
		return nil
	}
	return g.IDs
}

// HasGroup reports whether the settings declare the named group at all,
// even with no ids.
func (s *Settings) HasGroup(name string) bool {
	return lo.ContainsBy(s.Groups, func(g Group) bool { return g.Name == name })
}

// MotionGroups returns the motion group names in sorted order.
func (s *Settings) MotionGroups() []string {
	groups := lo.Keys(s.FileReferences.Motions)
	sort.Strings(groups)
	return groups
}

// MotionName is the clip name of the i-th motion in group.
func MotionName(group string, i int) string {
	return fmt.Sprintf("%s_%d", group, i)
}
