package models

import "strings"

// ProjectRequest is the argument set shared by every advisor tool. Either
// Path or Repo selects the target; with neither, the working directory is used.
type ProjectRequest struct {
	Path    string `json:"path,omitempty" validate:"omitempty,max=4096"`
	Repo    string `json:"repo,omitempty" validate:"omitempty,max=512"`
	Ref     string `json:"ref,omitempty" validate:"omitempty,max=255"`
	Subpath string `json:"subpath,omitempty" validate:"omitempty,max=1024,relpath"`
}

// Normalize trims surrounding whitespace from every field
func (r *ProjectRequest) Normalize() {
	r.Path = strings.TrimSpace(r.Path)
	r.Repo = strings.TrimSpace(r.Repo)
	r.Ref = strings.TrimSpace(r.Ref)
	r.Subpath = strings.TrimSpace(r.Subpath)
}

// IsRemote reports whether the request targets a remote repository
func (r ProjectRequest) IsRemote() bool {
	return strings.TrimSpace(r.Repo) != ""
}
