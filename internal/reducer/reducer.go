// Package reducer strips TypeScript-only syntax from exercise sources so
// they run as plain JavaScript. It is a fixed pipeline of regex rewrites,
// not a parser: anything it does not recognise is left alone and shows up
// later as a syntax error.
package reducer

import (
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"
)

// DefaultMatchTimeout bounds a single rewrite.
const DefaultMatchTimeout = 250 * time.Millisecond

// Pass names, in the order they run.
const (
	PassImports      = "imports"
	PassExports      = "exports"
	PassAnnotations  = "annotations"
	PassAssertions   = "assertions"
	PassDeclarations = "declarations"
)

// Type grammar shared by the annotation and assertion passes. Type names
// must look like PascalCase identifiers so SCREAMING_CASE constants and
// lowercase values are never taken for types.
const (
	primitive     = `(?:string|number|boolean|any|unknown|void|never|object|bigint|symbol|null|undefined)\b`
	leadPrimitive = `(?:string|number|boolean|any|unknown|void|never|object|bigint|symbol)\b`
	typeName      = `[A-Z](?:[a-z0-9][\w$]*)?\b`
	genericArgs   = `<(?:[^<>]|<(?:[^<>]|<[^<>]*>)*>)*>`
	literalType   = `(?:"[^"\n]*"|-?\d+(?:\.\d+)?)`

	member     = `(?:` + primitive + `|` + typeName + `(?:\s*` + genericArgs + `)?|` + literalType + `)(?:\[\])*`
	leadMember = `(?:` + leadPrimitive + `|` + typeName + `(?:\s*` + genericArgs + `)?)(?:\[\])*`
	typeExpr   = `(?:` + leadMember + `(?:\s*[|&]\s*` + member + `)*|` + literalType + `(?:\s*\|\s*` + member + `)+)`

	// A union or intersection led by a primitive. Only these are stripped
	// after a bare colon, where the colon may belong to an object literal
	// or a ternary instead.
	primitiveExpr = leadPrimitive + `(?:\[\])*(?:\s*[|&]\s*` + member + `)*`

	braces = `\{(?:[^{}]|\{(?:[^{}]|\{[^{}]*\})*\})*\}`
	parens = `\((?:[^()]|\((?:[^()]|\([^()]*\))*\))*\)`

	// A parenthesised list followed by an optional return type and a body
	// or an arrow: the parameters of a function, method, arrow or catch.
	paramList = `(?<!\b(?:if|while|for|switch|with)\s*)` + parens + `(?=\s*(?::[ \t]*` + typeExpr + `)?\s*(?:=>|\{))`
)

// rule rewrites every match of pattern. When inner is set, pattern only
// selects a region and inner is rewritten within it.
type rule struct {
	pattern     string
	inner       string
	replacement string
}

var passRules = []struct {
	name  string
	rules []rule
}{
	{PassImports, []rule{
		// import x from "m"; import {a, b} from "m"; import * as m from "m"; import type ...
		{pattern: `^[ \t]*import\s+(?:type\s+)?(?:[\w$]+\s*,\s*)?(?:\{[^}]*\}|\*\s*as\s+[\w$]+|[\w$]+)\s*from\s*"[^"\n]*"[ \t]*;?[ \t]*(?:\r?\n)?`, replacement: ``},
		// import "side-effect";
		{pattern: `^[ \t]*import\s*"[^"\n]*"[ \t]*;?[ \t]*(?:\r?\n)?`, replacement: ``},
	}},
	{PassExports, []rule{
		// export { a, b }; export * from "m";
		{pattern: `^[ \t]*export\s+(?:type\s+)?(?:\{[^}]*\}|\*(?:\s*as\s+[\w$]+)?)(?:\s*from\s*"[^"\n]*")?[ \t]*;?[ \t]*(?:\r?\n)?`, replacement: ``},
		{pattern: `^([ \t]*)export\s+default\s+(?=(?:async\s+)?function\b|(?:abstract\s+)?class\b|interface\b)`, replacement: `${1}`},
		// export default <expression>; keeps the expression as a statement.
		{pattern: `^([ \t]*)export\s+default\s+`, replacement: `${1}void `},
		{pattern: `^([ \t]*)export\s+(?=[\w$])`, replacement: `${1}`},
	}},
	{PassAnnotations, []rule{
		// function f<T>(  ->  function f(
		{pattern: `(\bfunction\b\s*\*?\s*[\w$]*\s*)<(?:[^<>()]|<[^<>()]*>)*>(?=\s*\()`, replacement: `${1}`},
		{pattern: `(\bclass\s+[\w$]+)\s*<(?:[^<>{}]|<[^<>{}]*>)*>`, replacement: `${1}`},
		{pattern: `(\bextends\s+[\w$.]+)\s*<(?:[^<>{}]|<[^<>{}]*>)*>(?=\s*(?:\{|implements\b))`, replacement: `${1}`},
		{pattern: `(\bclass\s+[\w$]+(?:\s+extends\s+[\w$.]+)?)\s+implements\s+[^{]+?(?=\s*\{)`, replacement: `${1}`},
		{pattern: `^([ \t]*)(?:(?:public|private|protected|readonly|override|declare|abstract)\s+)+(?=[\w$#\[*])`, replacement: `${1}`},
		// explicit type arguments on calls: new Map<string, number>()
		{pattern: `(?<=[\w$])<\s*` + typeExpr + `(?:\s*,\s*` + typeExpr + `)*\s*>(?=\()`, replacement: ``},
		// (a: T, { b }: U, c?: V)
		{pattern: paramList, inner: `(?<=[\w$\]}])\??:[ \t]*` + typeExpr + `(?=\s*[=,)])`},
		// ): T {  and  ): T =>
		{pattern: `(?<=\))[ \t]*:[ \t]*` + typeExpr + `(?=\s*(?:\{|=>))`, replacement: ``},
		// const a: T =  and  let { a }: T =
		{pattern: `(\b(?:const|let|var)\s+(?:[\w$]+|\{[^{}]*\}|\[[^\[\]]*\]))\s*\??:[ \t]*` + typeExpr + `(?=\s*[=,;])`, replacement: `${1}`},
		// class fields on their own line:  items: Item[] = [];  user?: User;
		{pattern: `^([ \t]*(?:static\s+)?(?!(?:default|case)\b)[#\w$]+)\??:[ \t]*` + typeExpr + `(?=\s*[=;])`, replacement: `${1}`},
		// a: string followed by = , ; ) { or =>
		{pattern: `(?<=[\w$)\]}])\??:[ \t]*` + primitiveExpr + `(?=\s*[=,;){])`, replacement: ``},
		// a: string at the end of a line
		{pattern: `(?<=[\w$)\]}])\??:[ \t]*` + primitiveExpr + `(?=[ \t]*(?:/\*[^*]*\*/[ \t]*)?$)`, replacement: ``},
	}},
	{PassAssertions, []rule{
		{pattern: `\s+as\s+const\b`, replacement: ``},
		{pattern: `(?<=[\w$)\]}"])\s+(?:as|satisfies)\s+` + typeExpr + `(?=\s*(?:[;,)\]}.:?]|$)|\s+(?:as|satisfies)\b)`, replacement: ``},
		// non-null assertions: x!.y, f(x!)
		{pattern: `(?<=[\w$)\]])!(?=[.\[)\],;])`, replacement: ``},
	}},
	{PassDeclarations, []rule{
		{pattern: `^[ \t]*(?:declare\s+)?interface\s+[\w$]+(?:\s*<(?:[^<>{}]|<[^<>{}]*>)*>)?(?:\s+extends\s+[^{]+)?\s*` + braces + `[ \t]*;?[ \t]*(?:\r?\n)?`, replacement: ``},
		// type aliases at the start of a line or after a semicolon; union
		// members may continue on lines starting with | or &.
		{pattern: `(^|;)[ \t]*(?:declare\s+)?type\s+[\w$]+(?:\s*<(?:[^<>]|<[^<>]*>)*>)?\s*=\s*(?:` + braces + `|[^;\n{}]|\r?\n(?=\s*[|&]))+;?[ \t]*(?:\r?\n)?`, replacement: `${1}`},
	}},
}

type compiledPass struct {
	name  string
	rules []compiledRule
}

type compiledRule struct {
	re          *regexp2.Regexp
	inner       *regexp2.Regexp
	replacement string
}

// Reducer applies the rewrite passes in order. It is safe for concurrent use.
type Reducer struct {
	passes []compiledPass
	logger zerolog.Logger
}

// Option configures a Reducer.
type Option func(*options)

type options struct {
	logger       zerolog.Logger
	matchTimeout time.Duration
}

// WithLogger sets the logger used to report failed passes.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMatchTimeout bounds every regex evaluation.
func WithMatchTimeout(d time.Duration) Option {
	return func(o *options) { o.matchTimeout = d }
}

// New compiles the rewrite passes.
func New(opts ...Option) *Reducer {
	o := options{
		logger:       zerolog.Nop(),
		matchTimeout: DefaultMatchTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Reducer{logger: o.logger}
	for _, p := range passRules {
		cp := compiledPass{name: p.name}
		for _, rl := range p.rules {
			cr := compiledRule{re: compile(rl.pattern, o.matchTimeout), replacement: rl.replacement}
			if rl.inner != "" {
				cr.inner = compile(rl.inner, o.matchTimeout)
			}
			cp.rules = append(cp.rules, cr)
		}
		r.passes = append(r.passes, cp)
	}
	return r
}

func compile(pattern string, timeout time.Duration) *regexp2.Regexp {
	re := regexp2.MustCompile(pattern, regexp2.Multiline)
	re.MatchTimeout = timeout
	return re
}

// Passes returns the pass names in execution order.
func (r *Reducer) Passes() []string {
	names := make([]string, len(r.passes))
	for i, p := range r.passes {
		names[i] = p.name
	}
	return names
}

// Reduce returns source with imports, export modifiers, type annotations,
// type assertions and interface/type declarations removed. It never fails.
func (r *Reducer) Reduce(source string) string {
	m := mask(source)
	text := m.text
	for _, p := range r.passes {
		text = r.apply(p, text)
	}
	return m.unmask(text)
}

// Step is the source as it looks after one pass.
type Step struct {
	Pass   string `json:"pass"`
	Output string `json:"output"`
}

// Explain runs the passes like Reduce and records the source after each.
func (r *Reducer) Explain(source string) []Step {
	m := mask(source)
	text := m.text
	steps := make([]Step, 0, len(r.passes))
	for _, p := range r.passes {
		text = r.apply(p, text)
		steps = append(steps, Step{Pass: p.name, Output: m.unmask(text)})
	}
	return steps
}

// apply runs every rule of a pass. When a rule fails (a match timeout) the
// pass input is returned unchanged.
func (r *Reducer) apply(p compiledPass, text string) string {
	out := text
	for _, rl := range p.rules {
		next, err := rl.rewrite(out)
		if err != nil {
			r.logger.Warn().Err(err).Str("pass", p.name).Msg("reducer pass skipped")
			return text
		}
		out = next
	}
	return out
}

func (rl compiledRule) rewrite(text string) (string, error) {
	if rl.inner == nil {
		return rl.re.Replace(text, rl.replacement, -1, -1)
	}

	var innerErr error
	out, err := rl.re.ReplaceFunc(text, func(m regexp2.Match) string {
		region := m.String()
		rewritten, err := rl.inner.Replace(region, rl.replacement, -1, -1)
		if err != nil {
			innerErr = err
			return region
		}
		return rewritten
	}, -1, -1)
	if err != nil {
		return "", err
	}
	return out, innerErr
}

var defaultReducer = New()

// Reduce runs the default reducer.
func Reduce(source string) string {
	return defaultReducer.Reduce(source)
}
