package hostapi

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTemplateVM(t *testing.T) (*goja.Runtime, *TemplateEngine) {
	t.Helper()

	vm := goja.New()
	e := NewTemplateEngine(zerolog.Nop())
	obj, err := e.Bind(vm)
	require.NoError(t, err)
	require.NoError(t, vm.Set("templateEngine", obj))
	return vm, e
}

func runString(t *testing.T, vm *goja.Runtime, src string) string {
	t.Helper()
	v, err := vm.RunString(src)
	require.NoError(t, err)
	return v.String()
}

func TestTemplateCompile(t *testing.T) {
	vm, _ := newTemplateVM(t)

	got := runString(t, vm, `
		var tpl = templateEngine.compile('Hello, {{ name }}! You are {{user.age}}.');
		tpl({name: 'World', user: {age: 30}});
	`)
	assert.Equal(t, "Hello, World! You are 30.", got)
}

func TestTemplateRender(t *testing.T) {
	vm, _ := newTemplateVM(t)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "missing value", src: `templateEngine.render('[{{missing}}]', {})`, want: "[]"},
		{name: "missing nested", src: `templateEngine.render('[{{a.b.c}}]', {a: null})`, want: "[]"},
		{name: "this", src: `templateEngine.render('<{{this}}>', 'text')`, want: "<text>"},
		{name: "this path", src: `templateEngine.render('{{this.n}}', {n: 3})`, want: "3"},
		{name: "no context", src: `templateEngine.render('x{{y}}z')`, want: "xz"},
		{name: "plain text", src: `templateEngine.render('no tags', {})`, want: "no tags"},
		{name: "string length", src: `templateEngine.render('{{s.length}}', {s: 'abcd'})`, want: "4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runString(t, vm, tt.src))
		})
	}
}

func TestTemplateHelpers(t *testing.T) {
	vm, e := newTemplateVM(t)

	got := runString(t, vm, `
		templateEngine.registerHelper('upper', function(s) { return String(s).toUpperCase(); });
		templateEngine.registerHelper('join', function(a, b, sep) { return a + sep + b; });
		templateEngine.registerHelper('nothing', function() { return null; });
		templateEngine.registerHelper('self', function() { return this.who; });
		templateEngine.render('{{upper name}}|{{join first "two" "-"}}|{{nothing}}|{{self}}|{{join 1 2.5 ":"}}',
			{name: 'ada', first: 'one', who: 'me'});
	`)
	assert.Equal(t, "ADA|one-two||me|1:2.5", got)
	assert.Equal(t, 4, e.HelperCount())

	runString(t, vm, `templateEngine.unregisterHelper('upper'); ''`)
	assert.Equal(t, 3, e.HelperCount())
}

func TestTemplateUnknownHelper(t *testing.T) {
	vm, _ := newTemplateVM(t)

	got := runString(t, vm, `
		var msg;
		try { templateEngine.render('{{shout name}}', {name: 'x'}); } catch (e) { msg = e.message; }
		msg;
	`)
	assert.Contains(t, got, `unknown helper "shout"`)
}

func TestTemplateHelperThrowsPropagates(t *testing.T) {
	vm, _ := newTemplateVM(t)

	got := runString(t, vm, `
		templateEngine.registerHelper('fail', function() { throw new Error('helper broke'); });
		var msg;
		try { templateEngine.render('{{fail}}', {}); } catch (e) { msg = e.message; }
		msg;
	`)
	assert.Equal(t, "helper broke", got)
}

func TestTemplatePartials(t *testing.T) {
	vm, _ := newTemplateVM(t)

	got := runString(t, vm, `
		templateEngine.registerPartial('greeting', 'Hi {{name}}');
		templateEngine.render('{{> greeting}} / {{> greeting other}}', {name: 'A', other: {name: 'B'}});
	`)
	assert.Equal(t, "Hi A / Hi B", got)
}

func TestTemplatePartialRecursionLimited(t *testing.T) {
	vm, _ := newTemplateVM(t)

	got := runString(t, vm, `
		templateEngine.registerPartial('loop', '{{> loop}}');
		var msg;
		try { templateEngine.render('{{> loop}}', {}); } catch (e) { msg = e.message; }
		msg;
	`)
	assert.Contains(t, got, "partials nested too deeply")
}

func TestTemplateInvalidArguments(t *testing.T) {
	vm, _ := newTemplateVM(t)

	tests := []struct {
		name string
		src  string
		want string
	}{
		{name: "compile without source", src: `templateEngine.compile()`, want: "template source is required"},
		{name: "unterminated tag", src: `templateEngine.compile('{{name')`, want: "invalid template"},
		{name: "helper not function", src: `templateEngine.registerHelper('x', 1)`, want: "must be a function"},
		{name: "helper without name", src: `templateEngine.registerHelper('', function() {})`, want: "helper name is required"},
		{name: "unterminated quote", src: `templateEngine.render('{{x "a}}', {})`, want: "unterminated string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vm.RunString(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTemplateEnginesAreIsolated(t *testing.T) {
	vm1, e1 := newTemplateVM(t)
	runString(t, vm1, `templateEngine.registerHelper('h', function() { return 'one'; }); ''`)

	vm2, e2 := newTemplateVM(t)
	_, err := vm2.RunString(`templateEngine.render('{{h x}}', {})`)
	require.Error(t, err)

	assert.Equal(t, 1, e1.HelperCount())
	assert.Equal(t, 0, e2.HelperCount())
}

func TestSplitArgs(t *testing.T) {
	tokens, err := splitArgs(`join a "b c" 'd'  3`)
	require.NoError(t, err)
	assert.Equal(t, []string{"join", "a", `"b c"`, "'d'", "3"}, tokens)

	_, err = splitArgs(`"open`)
	assert.Error(t, err)
}
