package env

import (
	"context"
	"fmt"

	"github.com/fornellas/roam/cluster"
	"github.com/fornellas/roam/resource"
)

func intsToAny(ints []int) []any {
	if ints == nil {
		return nil
	}
	values := make([]any, len(ints))
	for i, v := range ints {
		values[i] = v
	}
	return values
}

func stringsArg(args map[string]any, name string) ([]string, error) {
	return resource.Config(args).Strings(name)
}

// Methods callable at a cluster for Env resources:
//   - install(force bool) returns the setup commands exit codes, or nil when skipped.
//   - run(cmds []string) returns the commands exit codes.
//   - fingerprint() returns the Env fingerprint.
func handle(
	ctx context.Context, c *cluster.HostCluster, config resource.Config, method string, args map[string]any,
) (any, error) {
	e, err := FromConfig(config, true)
	if err != nil {
		return nil, err
	}
	switch method {
	case "install":
		force, err := cluster.BoolArg(args, "force")
		if err != nil {
			return nil, err
		}
		exitCodes, err := e.Install(ctx, c.Host(), c.Record(), force)
		if err != nil {
			return nil, err
		}
		return intsToAny(exitCodes), nil
	case "run":
		cmds, err := stringsArg(args, "cmds")
		if err != nil {
			return nil, err
		}
		exitCodes, err := e.Run(ctx, c.Host(), cmds)
		if err != nil {
			return nil, err
		}
		return intsToAny(exitCodes), nil
	case "fingerprint":
		return e.Fingerprint()
	default:
		return nil, fmt.Errorf("env has no method %#v", method)
	}
}

func init() {
	cluster.RegisterHandler(ResourceType, handle)
}
