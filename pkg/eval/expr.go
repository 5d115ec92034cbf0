package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/vango-dev/vango-web/pkg/host"
	"github.com/vango-dev/vango-web/pkg/protocol"
	"github.com/vango-dev/vango-web/pkg/registry"
)

// ExprExecutor evaluates scripts as expr-lang expressions over the document
// reachable through a registry. Scripts see these functions:
//
//	node(id)        map with id, kind, tag or text, and children
//	text(id)        text content of the node and its descendants
//	attr(id, name)  attribute value, "" when absent
//	children(id)    ids of the registered children
//	html(id)        serialized markup
//
// and the constant root (the mount root id). Each script runs on its own
// goroutine, holding the lock given to NewExprExecutor while it reads.
type ExprExecutor struct {
	reg  *registry.Registry
	doc  host.Document
	lock sync.Locker
}

// NewExprExecutor creates an executor over reg. lock guards every access to
// the registry and document; pass the lock the rest of the renderer uses, or
// nil when nothing else touches them concurrently.
func NewExprExecutor(reg *registry.Registry, lock sync.Locker) *ExprExecutor {
	if lock == nil {
		lock = &sync.Mutex{}
	}
	return &ExprExecutor{reg: reg, doc: reg.Document(), lock: lock}
}

// Execute implements Executor.
func (x *ExprExecutor) Execute(ctx context.Context, req protocol.EvalRequest, resolve ResolveFunc) error {
	prg, err := expr.Compile(req.Script, x.options()...)
	if err != nil {
		resolve(protocol.EvalResponse{ID: req.ID, Error: err.Error()})
		return nil
	}
	go func() {
		resolve(x.run(ctx, req.ID, prg))
	}()
	return nil
}

func (x *ExprExecutor) run(ctx context.Context, id string, prg *vm.Program) protocol.EvalResponse {
	if err := ctx.Err(); err != nil {
		return protocol.EvalResponse{ID: id, Error: err.Error()}
	}

	x.lock.Lock()
	out, err := expr.Run(prg, map[string]any{"root": int(registry.RootID)})
	x.lock.Unlock()
	if err != nil {
		return protocol.EvalResponse{ID: id, Error: err.Error()}
	}

	value, err := json.Marshal(out)
	if err != nil {
		return protocol.EvalResponse{ID: id, Error: fmt.Sprintf("result is not serializable: %v", err)}
	}
	return protocol.EvalResponse{ID: id, Value: value}
}

func (x *ExprExecutor) options() []expr.Option {
	return []expr.Option{
		expr.Env(map[string]any{"root": 0}),
		expr.Function("node", func(params ...any) (any, error) {
			return x.node(params[0].(int))
		},
			new(func(int) map[string]any)),
		expr.Function("text", func(params ...any) (any, error) {
			n, err := x.handle(params[0].(int))
			if err != nil {
				return nil, err
			}
			return x.textContent(n), nil
		},
			new(func(int) string)),
		expr.Function("attr", func(params ...any) (any, error) {
			n, err := x.handle(params[0].(int))
			if err != nil {
				return nil, err
			}
			v, _ := x.doc.Attribute(n, "", params[1].(string))
			return v, nil
		},
			new(func(int, string) string)),
		expr.Function("children", func(params ...any) (any, error) {
			n, err := x.handle(params[0].(int))
			if err != nil {
				return nil, err
			}
			return x.children(n), nil
		},
			new(func(int) []int)),
		expr.Function("html", func(params ...any) (any, error) {
			n, err := x.handle(params[0].(int))
			if err != nil {
				return nil, err
			}
			var b strings.Builder
			if err := x.doc.Render(&b, n); err != nil {
				return nil, err
			}
			return b.String(), nil
		},
			new(func(int) string)),
	}
}

// nodeID converts a script-supplied id, rejecting values a NodeID cannot hold.
func nodeID(id int) (registry.NodeID, error) {
	if id < 0 || uint64(id) > math.MaxUint32 {
		return 0, fmt.Errorf("invalid node id %d", id)
	}
	return registry.NodeID(id), nil
}

func (x *ExprExecutor) handle(id int) (host.Node, error) {
	nid, err := nodeID(id)
	if err != nil {
		return nil, err
	}
	return x.reg.Handle(nid)
}

func (x *ExprExecutor) node(id int) (map[string]any, error) {
	nid, err := nodeID(id)
	if err != nil {
		return nil, err
	}
	s, err := x.reg.Get(nid)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"id":       id,
		"kind":     s.Kind.String(),
		"children": x.children(s.Handle),
	}
	switch s.Kind {
	case registry.KindElement, registry.KindRoot:
		out["tag"] = x.doc.Tag(s.Handle)
	case registry.KindText:
		out["text"] = x.doc.Text(s.Handle)
	}
	return out, nil
}

func (x *ExprExecutor) children(n host.Node) []int {
	ids := []int{}
	for _, c := range x.doc.Children(n) {
		if id, ok := x.reg.Lookup(c); ok {
			ids = append(ids, int(id))
		}
	}
	return ids
}

func (x *ExprExecutor) textContent(n host.Node) string {
	var b strings.Builder
	host.Walk(x.doc, n, func(c host.Node) bool {
		if x.doc.Type(c) == host.TextNode {
			b.WriteString(x.doc.Text(c))
		}
		return true
	})
	return b.String()
}
