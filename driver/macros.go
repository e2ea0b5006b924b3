package driver

import "strings"

// MacroSet holds the symbolic tokens that may be placed into role arguments
// at build time. They are plain string sentinels until a backend substitutes
// them at submission time; the data model never resolves them itself, which
// keeps role descriptions backend-agnostic.
type MacroSet struct {
	// AppID resolves to the backend-assigned app id.
	AppID string
	// ImgRoot resolves to the local root path the role's image was fetched to.
	ImgRoot string
}

// Macros is the macro registry available to role builders.
var Macros = MacroSet{
	AppID:   "${app_id}",
	ImgRoot: "${img_root}",
}

// Substitute returns a copy of args with every macro token textually replaced
// by its concrete value. The input slice is not modified.
func (m MacroSet) Substitute(args []string, imgRoot, appID string) []string {
	resolved := make([]string, 0, len(args))
	for _, arg := range args {
		resolved = append(resolved, m.SubstituteIn(arg, imgRoot, appID))
	}
	return resolved
}

// SubstituteIn resolves macro tokens within a single string.
func (m MacroSet) SubstituteIn(s, imgRoot, appID string) string {
	s = strings.ReplaceAll(s, m.ImgRoot, imgRoot)
	s = strings.ReplaceAll(s, m.AppID, appID)
	return s
}
