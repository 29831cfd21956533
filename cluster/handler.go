package cluster

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fornellas/roam/resource"
)

// Handler calls method on a resource registered at a HostCluster, given its config.
type Handler func(ctx context.Context, c *HostCluster, config resource.Config, method string, args map[string]any) (any, error)

var (
	handlersMu sync.RWMutex
	handlers   = map[string]Handler{}
)

// RegisterHandler makes resources of resourceType callable with CallMethod.
func RegisterHandler(resourceType string, handler Handler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[resourceType] = handler
}

func getHandler(resourceType string) (Handler, error) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	handler, ok := handlers[resourceType]
	if !ok {
		types := make([]string, 0, len(handlers))
		for t := range handlers {
			types = append(types, t)
		}
		sort.Strings(types)
		return nil, fmt.Errorf("no handler for resource type %#v, valid options: %v", resourceType, types)
	}
	return handler, nil
}

// BoolArg returns the boolean argument name, false if unset.
func BoolArg(args map[string]any, name string) (bool, error) {
	switch value := args[name].(type) {
	case nil:
		return false, nil
	case bool:
		return value, nil
	default:
		return false, fmt.Errorf("argument %#v: expected bool, got %T", name, value)
	}
}
