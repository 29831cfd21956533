package env

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

type hclEnv struct {
	Name         string            `hcl:"name,label"`
	Reqs         []string          `hcl:"reqs,optional"`
	SetupCmds    []string          `hcl:"setup_cmds,optional"`
	EnvVars      map[string]string `hcl:"env_vars,optional"`
	WorkingDir   string            `hcl:"working_dir,optional"`
	CondaEnvName string            `hcl:"conda_env_name,optional"`
}

type hclFile struct {
	Envs []hclEnv `hcl:"env,block"`
}

// Load parses env blocks from HCL (or JSON, by .json extension) files, eg:
//
//	env "train" {
//	  reqs       = ["numpy", "./src"]
//	  setup_cmds = ["python -m compileall ./src"]
//	  env_vars   = { MODE = "train" }
//	}
//
// Envs declaring conda_env_name are CondaEnv. Envs are returned sorted by name, and names
// must be unique across all files.
func Load(filePaths []string) ([]*Env, error) {
	parser := hclparse.NewParser()
	var allDiagnostics hcl.Diagnostics
	var hclEnvs []hclEnv

	for _, filePath := range filePaths {
		var file *hcl.File
		var diags hcl.Diagnostics
		switch filepath.Ext(filePath) {
		case ".json":
			file, diags = parser.ParseJSONFile(filePath)
		default:
			file, diags = parser.ParseHCLFile(filePath)
		}
		allDiagnostics = append(allDiagnostics, diags...)
		if file == nil {
			continue
		}
		f := &hclFile{}
		allDiagnostics = append(allDiagnostics, gohcl.DecodeBody(file.Body, nil, f)...)
		hclEnvs = append(hclEnvs, f.Envs...)
	}

	if allDiagnostics.HasErrors() {
		return nil, fmt.Errorf("HCL parsing errors: %s", allDiagnostics.Error())
	}

	envs := []*Env{}
	names := map[string]bool{}
	for _, h := range hclEnvs {
		if names[h.Name] {
			return nil, fmt.Errorf("env %#v declared more than once", h.Name)
		}
		names[h.Name] = true
		if h.CondaEnvName != "" {
			envs = append(envs, NewConda(h.Name, h.CondaEnvName, h.Reqs, h.SetupCmds, h.EnvVars, h.WorkingDir))
		} else {
			envs = append(envs, New(h.Name, h.Reqs, h.SetupCmds, h.EnvVars, h.WorkingDir))
		}
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].Name < envs[j].Name })
	return envs, nil
}
