package hostapi

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
	"github.com/valyala/fasttemplate"
)

const (
	tagStart = "{{"
	tagEnd   = "}}"

	// maxPartialDepth bounds recursive partial expansion.
	maxPartialDepth = 16
)

var errPartialDepth = errors.New("partials nested too deeply")

// TemplateEngine is the templateEngine binding. Helpers and partials are
// registered on the instance, so every run starts from an empty registry.
// An engine is meant to be bound to a single VM.
type TemplateEngine struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	helpers  map[string]goja.Callable
	partials map[string]*fasttemplate.Template
}

// NewTemplateEngine creates an engine with no helpers or partials.
func NewTemplateEngine(logger zerolog.Logger) *TemplateEngine {
	return &TemplateEngine{
		logger:   logger,
		helpers:  make(map[string]goja.Callable),
		partials: make(map[string]*fasttemplate.Template),
	}
}

// Bind builds the templateEngine object for vm.
func (e *TemplateEngine) Bind(vm *goja.Runtime) (goja.Value, error) {
	obj := vm.NewObject()

	_ = obj.Set("compile", func(call goja.FunctionCall) goja.Value {
		tpl := e.mustParse(vm, call.Argument(0))
		return vm.ToValue(func(inner goja.FunctionCall) goja.Value {
			return vm.ToValue(e.mustExecute(vm, tpl, inner.Argument(0)))
		})
	})

	_ = obj.Set("render", func(call goja.FunctionCall) goja.Value {
		tpl := e.mustParse(vm, call.Argument(0))
		return vm.ToValue(e.mustExecute(vm, tpl, call.Argument(1)))
	})

	_ = obj.Set("registerHelper", func(call goja.FunctionCall) goja.Value {
		name := requireName(vm, call.Argument(0), "helper")
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(vm.NewTypeError("helper %q must be a function", name))
		}
		e.mu.Lock()
		e.helpers[name] = fn
		e.mu.Unlock()
		e.logger.Debug().Str("helper", name).Msg("template helper registered")
		return goja.Undefined()
	})

	_ = obj.Set("unregisterHelper", func(call goja.FunctionCall) goja.Value {
		name := requireName(vm, call.Argument(0), "helper")
		e.mu.Lock()
		delete(e.helpers, name)
		e.mu.Unlock()
		return goja.Undefined()
	})

	_ = obj.Set("registerPartial", func(call goja.FunctionCall) goja.Value {
		name := requireName(vm, call.Argument(0), "partial")
		tpl := e.mustParse(vm, call.Argument(1))
		e.mu.Lock()
		e.partials[name] = tpl
		e.mu.Unlock()
		return goja.Undefined()
	})

	return obj, nil
}

// HelperCount returns the number of registered helpers.
func (e *TemplateEngine) HelperCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.helpers)
}

func requireName(vm *goja.Runtime, v goja.Value, kind string) string {
	if isNullish(v) || v.String() == "" {
		panic(vm.NewTypeError("%s name is required", kind))
	}
	return v.String()
}

func (e *TemplateEngine) mustParse(vm *goja.Runtime, src goja.Value) *fasttemplate.Template {
	if isNullish(src) {
		panic(vm.NewTypeError("template source is required"))
	}
	tpl, err := fasttemplate.NewTemplate(src.String(), tagStart, tagEnd)
	if err != nil {
		panic(vm.NewTypeError("invalid template: %v", err))
	}
	return tpl
}

func (e *TemplateEngine) mustExecute(vm *goja.Runtime, tpl *fasttemplate.Template, ctx goja.Value) string {
	out, err := e.execute(vm, tpl, ctx, 0)
	if err == nil {
		return out
	}

	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		panic(ie)
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		panic(ex.Value())
	}
	panic(vm.NewTypeError("template render failed: %v", err))
}

func (e *TemplateEngine) execute(vm *goja.Runtime, tpl *fasttemplate.Template, ctx goja.Value, depth int) (string, error) {
	return tpl.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		text, err := e.evalTag(vm, strings.TrimSpace(tag), ctx, depth)
		if err != nil {
			return 0, err
		}
		return io.WriteString(w, text)
	})
}

func (e *TemplateEngine) evalTag(vm *goja.Runtime, tag string, ctx goja.Value, depth int) (string, error) {
	if tag == "" {
		return "", nil
	}

	if strings.HasPrefix(tag, ">") {
		return e.evalPartial(vm, strings.TrimSpace(tag[1:]), ctx, depth)
	}

	tokens, err := splitArgs(tag)
	if err != nil {
		return "", err
	}

	e.mu.RLock()
	helper, isHelper := e.helpers[tokens[0]]
	e.mu.RUnlock()

	if isHelper {
		args := make([]goja.Value, 0, len(tokens)-1)
		for _, tok := range tokens[1:] {
			args = append(args, resolveArg(vm, ctx, tok))
		}
		res, err := helper(ctx, args...)
		if err != nil {
			return "", err
		}
		return displayString(res), nil
	}

	if len(tokens) > 1 {
		return "", fmt.Errorf("unknown helper %q", tokens[0])
	}
	return displayString(lookup(vm, ctx, tokens[0])), nil
}

func (e *TemplateEngine) evalPartial(vm *goja.Runtime, spec string, ctx goja.Value, depth int) (string, error) {
	if depth >= maxPartialDepth {
		return "", errPartialDepth
	}

	tokens, err := splitArgs(spec)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", errors.New("partial name is required")
	}

	e.mu.RLock()
	tpl, ok := e.partials[tokens[0]]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("partial %q is not registered", tokens[0])
	}

	partialCtx := ctx
	if len(tokens) > 1 {
		partialCtx = resolveArg(vm, ctx, tokens[1])
	}
	return e.execute(vm, tpl, partialCtx, depth+1)
}

// resolveArg turns a helper argument token into a value: quoted strings,
// numbers and keywords are literals, anything else is a context path.
func resolveArg(vm *goja.Runtime, ctx goja.Value, tok string) goja.Value {
	if n := len(tok); n >= 2 && (tok[0] == '"' || tok[0] == '\'') && tok[n-1] == tok[0] {
		return vm.ToValue(tok[1 : n-1])
	}
	switch tok {
	case "true":
		return vm.ToValue(true)
	case "false":
		return vm.ToValue(false)
	case "null":
		return goja.Null()
	case "undefined":
		return goja.Undefined()
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return vm.ToValue(i)
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return vm.ToValue(f)
	}
	return lookup(vm, ctx, tok)
}

// lookup resolves a dotted path ("user.name", "this", "this.items.length")
// against ctx. Missing segments yield undefined.
func lookup(vm *goja.Runtime, ctx goja.Value, path string) goja.Value {
	if path == "this" || path == "." {
		if ctx == nil {
			return goja.Undefined()
		}
		return ctx
	}
	path = strings.TrimPrefix(path, "this.")

	cur := ctx
	for _, part := range strings.Split(path, ".") {
		if isNullish(cur) {
			return goja.Undefined()
		}
		next := cur.ToObject(vm).Get(part)
		if next == nil {
			return goja.Undefined()
		}
		cur = next
	}
	if cur == nil {
		return goja.Undefined()
	}
	return cur
}

func displayString(v goja.Value) string {
	if isNullish(v) {
		return ""
	}
	return CoerceString(v)
}

// splitArgs splits a tag on whitespace, keeping quoted strings intact.
func splitArgs(s string) ([]string, error) {
	var (
		tokens []string
		cur    strings.Builder
		quote  byte
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			cur.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
			cur.WriteByte(ch)
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			cur.WriteByte(ch)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string in tag %q", s)
	}
	flush()

	if len(tokens) == 0 {
		return nil, errors.New("empty tag")
	}
	return tokens, nil
}
