//go:build cgo && cpl

package cplnative

/*
#cgo pkg-config: cplcore cplui cpldfs
#cgo LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <cpl.h>

typedef int (*gocpl_get_info_fn)(cpl_pluginlist *);

static int gocpl_get_info(void *fn, cpl_pluginlist *list) {
	return ((gocpl_get_info_fn)fn)(list);
}

static int gocpl_call(cpl_plugin_func fn, cpl_plugin *plugin) {
	return fn == NULL ? -1 : fn(plugin);
}

static int gocpl_is_recipe(cpl_plugin *plugin) {
	return (cpl_plugin_get_type(plugin) & CPL_PLUGIN_TYPE_RECIPE) != 0;
}

static cpl_parameterlist *gocpl_parameters(cpl_plugin *plugin) {
	return ((cpl_recipe *)plugin)->parameters;
}

static cpl_frameset *gocpl_frames(cpl_plugin *plugin) {
	return ((cpl_recipe *)plugin)->frames;
}

static void gocpl_set_frames(cpl_plugin *plugin, cpl_frameset *frames) {
	((cpl_recipe *)plugin)->frames = frames;
}

static cpl_recipeconfig *gocpl_config(cpl_plugin *plugin) {
	if (cpl_plugin_get_type(plugin) != CPL_PLUGIN_TYPE_RECIPE_V2) {
		return NULL;
	}
	return ((cpl_recipe2 *)plugin)->config;
}

static char *gocpl_property_string(const cpl_property *p) {
	char buf[128];
	switch (cpl_property_get_type(p)) {
	case CPL_TYPE_BOOL:
		return strdup(cpl_property_get_bool(p) ? "T" : "F");
	case CPL_TYPE_CHAR:
		snprintf(buf, sizeof buf, "%c", cpl_property_get_char(p));
		break;
	case CPL_TYPE_INT:
		snprintf(buf, sizeof buf, "%d", cpl_property_get_int(p));
		break;
	case CPL_TYPE_LONG:
		snprintf(buf, sizeof buf, "%ld", cpl_property_get_long(p));
		break;
	case CPL_TYPE_LONG_LONG:
		snprintf(buf, sizeof buf, "%lld", cpl_property_get_long_long(p));
		break;
	case CPL_TYPE_FLOAT:
		snprintf(buf, sizeof buf, "%.9g", cpl_property_get_float(p));
		break;
	case CPL_TYPE_DOUBLE:
		snprintf(buf, sizeof buf, "%.17g", cpl_property_get_double(p));
		break;
	case CPL_TYPE_STRING:
		return strdup(cpl_property_get_string(p));
	default:
		buf[0] = '\0';
	}
	return strdup(buf);
}
*/
import "C"

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"
)

// callMu serializes every CPL call in the process: the CPL error state, the
// message subsystem, the environment and the working directory are global.
var (
	callMu   sync.Mutex
	initOnce sync.Once
)

func ensureInit() {
	initOnce.Do(func() {
		C.cpl_init(C.CPL_INIT_DEFAULT)
		C.cpl_msg_set_level(C.CPL_MSG_OFF)
	})
}

type Library struct {
	path   string
	handle unsafe.Pointer
	list   *C.cpl_pluginlist
}

// Open loads path with dlopen and collects its plugins.
func Open(path string) (*Library, error) {
	callMu.Lock()
	defer callMu.Unlock()
	ensureInit()

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	handle := C.dlopen(cpath, C.RTLD_NOW|C.RTLD_LOCAL)
	if handle == nil {
		return nil, fmt.Errorf("dlopen %s: %s", path, C.GoString(C.dlerror()))
	}
	centry := C.CString(EntryPoint)
	defer C.free(unsafe.Pointer(centry))
	entry := C.dlsym(handle, centry)
	if entry == nil {
		C.dlclose(handle)
		return nil, fmt.Errorf("%s does not export %s", path, EntryPoint)
	}
	list := C.cpl_pluginlist_new()
	if C.gocpl_get_info(entry, list) != 0 {
		C.cpl_pluginlist_delete(list)
		C.dlclose(handle)
		return nil, fmt.Errorf("%s: %s failed", path, EntryPoint)
	}
	C.cpl_error_reset()
	return &Library{path: path, handle: handle, list: list}, nil
}

func (l *Library) Path() string { return l.path }

func (l *Library) Close() error {
	callMu.Lock()
	defer callMu.Unlock()
	if l.handle == nil {
		return nil
	}
	C.cpl_pluginlist_delete(l.list)
	rc := C.dlclose(l.handle)
	l.handle, l.list = nil, nil
	if rc != 0 {
		return fmt.Errorf("dlclose %s: %s", l.path, C.GoString(C.dlerror()))
	}
	return nil
}

func (l *Library) plugins() []*C.cpl_plugin {
	var out []*C.cpl_plugin
	for p := C.cpl_pluginlist_get_first(l.list); p != nil; p = C.cpl_pluginlist_get_next(l.list) {
		if C.gocpl_is_recipe(p) != 0 {
			out = append(out, p)
		}
	}
	return out
}

func (l *Library) find(name string) (*C.cpl_plugin, error) {
	for _, p := range l.plugins() {
		if C.GoString(C.cpl_plugin_get_name(p)) == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s has no recipe %s", l.path, name)
}

// Recipes initializes each recipe plugin long enough to read its parameters
// and frame configuration.
func (l *Library) Recipes() ([]Recipe, error) {
	callMu.Lock()
	defer callMu.Unlock()
	if l.handle == nil {
		return nil, fmt.Errorf("%s is closed", l.path)
	}
	var out []Recipe
	for _, p := range l.plugins() {
		r, err := describe(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", l.path, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func describe(p *C.cpl_plugin) (Recipe, error) {
	r := Recipe{
		Name:        C.GoString(C.cpl_plugin_get_name(p)),
		Synopsis:    C.GoString(C.cpl_plugin_get_synopsis(p)),
		Description: C.GoString(C.cpl_plugin_get_description(p)),
		Author:      C.GoString(C.cpl_plugin_get_author(p)),
		Email:       C.GoString(C.cpl_plugin_get_email(p)),
		Copyright:   C.GoString(C.cpl_plugin_get_copyright(p)),
	}
	if v := C.cpl_plugin_get_version_string(p); v != nil {
		r.Version = C.GoString(v)
		C.cpl_free(unsafe.Pointer(v))
	}
	if C.gocpl_call(C.cpl_plugin_get_init(p), p) != 0 {
		err := takeError()
		C.gocpl_call(C.cpl_plugin_get_deinit(p), p)
		return Recipe{}, fmt.Errorf("init recipe %s: %s", r.Name, err)
	}
	defer C.gocpl_call(C.cpl_plugin_get_deinit(p), p)

	params := C.gocpl_parameters(p)
	for par := C.cpl_parameterlist_get_first(params); par != nil; par = C.cpl_parameterlist_get_next(params) {
		r.Params = append(r.Params, declaration(par))
	}
	if config := C.gocpl_config(p); config != nil {
		r.Configurations, r.Outputs = configurations(config)
	}
	C.cpl_error_reset()
	return r, nil
}

func declaration(par *C.cpl_parameter) ParamDecl {
	d := ParamDecl{
		Name:        C.GoString(C.cpl_parameter_get_name(par)),
		Context:     C.GoString(C.cpl_parameter_get_context(par)),
		Description: C.GoString(C.cpl_parameter_get_help(par)),
	}
	if alias := C.cpl_parameter_get_alias(par, C.CPL_PARAMETER_MODE_CLI); alias != nil {
		d.Alias = C.GoString(alias)
	}
	kind := C.cpl_parameter_get_type(par)
	switch kind {
	case C.CPL_TYPE_BOOL:
		d.Kind = "bool"
		d.Default = Scalar{Kind: "bool", Bool: C.cpl_parameter_get_default_bool(par) != 0}
	case C.CPL_TYPE_INT:
		d.Kind = "int"
		d.Default = Scalar{Kind: "int", Int: int64(C.cpl_parameter_get_default_int(par))}
	case C.CPL_TYPE_DOUBLE:
		d.Kind = "float"
		d.Default = Scalar{Kind: "float", Float: float64(C.cpl_parameter_get_default_double(par))}
	default:
		d.Kind = "string"
		d.Default = Scalar{Kind: "string", Text: C.GoString(C.cpl_parameter_get_default_string(par))}
	}
	switch C.cpl_parameter_get_class(par) {
	case C.CPL_PARAMETER_CLASS_RANGE:
		if kind == C.CPL_TYPE_INT {
			d.Min = &Scalar{Kind: "int", Int: int64(C.cpl_parameter_get_range_min_int(par))}
			d.Max = &Scalar{Kind: "int", Int: int64(C.cpl_parameter_get_range_max_int(par))}
		} else {
			d.Min = &Scalar{Kind: "float", Float: float64(C.cpl_parameter_get_range_min_double(par))}
			d.Max = &Scalar{Kind: "float", Float: float64(C.cpl_parameter_get_range_max_double(par))}
		}
	case C.CPL_PARAMETER_CLASS_ENUM:
		d.Enum = true
		n := int(C.cpl_parameter_get_enum_size(par))
		for i := 0; i < n; i++ {
			idx := C.int(i)
			switch kind {
			case C.CPL_TYPE_INT:
				d.Choices = append(d.Choices, Scalar{Kind: "int", Int: int64(C.cpl_parameter_get_enum_int(par, idx))})
			case C.CPL_TYPE_DOUBLE:
				d.Choices = append(d.Choices, Scalar{Kind: "float", Float: float64(C.cpl_parameter_get_enum_double(par, idx))})
			default:
				d.Choices = append(d.Choices, Scalar{Kind: "string", Text: C.GoString(C.cpl_parameter_get_enum_string(par, idx))})
			}
		}
	}
	return d
}

func configurations(config *C.cpl_recipeconfig) ([][]FrameCount, []string) {
	var out [][]FrameCount
	var outputs []string
	seenOutput := map[string]struct{}{}
	tags := C.cpl_recipeconfig_get_tags(config)
	if tags == nil {
		return nil, nil
	}
	defer freeStrings(tags)
	for _, tag := range goStrings(tags) {
		ctag := C.CString(tag)
		configuration := []FrameCount{{
			Tag: tag,
			Min: clampCount(C.cpl_recipeconfig_get_min_count(config, ctag, ctag)),
			Max: clampCount(C.cpl_recipeconfig_get_max_count(config, ctag, ctag)),
		}}
		if inputs := C.cpl_recipeconfig_get_inputs(config, ctag); inputs != nil {
			for _, input := range goStrings(inputs) {
				cinput := C.CString(input)
				configuration = append(configuration, FrameCount{
					Tag: input,
					Min: clampCount(C.cpl_recipeconfig_get_min_count(config, ctag, cinput)),
					Max: clampCount(C.cpl_recipeconfig_get_max_count(config, ctag, cinput)),
				})
				C.free(unsafe.Pointer(cinput))
			}
			freeStrings(inputs)
		}
		if products := C.cpl_recipeconfig_get_outputs(config, ctag); products != nil {
			for _, product := range goStrings(products) {
				if _, ok := seenOutput[product]; !ok {
					seenOutput[product] = struct{}{}
					outputs = append(outputs, product)
				}
			}
			freeStrings(products)
		}
		C.free(unsafe.Pointer(ctag))
		out = append(out, configuration)
	}
	return out, outputs
}

// clampCount maps CPL's -1 (unspecified) to zero.
func clampCount(n C.cpl_size) int {
	if n < 0 {
		return 0
	}
	return int(n)
}

func goStrings(list **C.char) []string {
	var out []string
	for p := list; *p != nil; p = (**C.char)(unsafe.Add(unsafe.Pointer(p), unsafe.Sizeof(*p))) {
		out = append(out, C.GoString(*p))
	}
	return out
}

func freeStrings(list **C.char) {
	for p := list; *p != nil; p = (**C.char)(unsafe.Add(unsafe.Pointer(p), unsafe.Sizeof(*p))) {
		C.cpl_free(unsafe.Pointer(*p))
	}
	C.cpl_free(unsafe.Pointer(list))
}

// Invoke runs one recipe. The process working directory and environment are
// switched for the duration of the call and restored afterwards.
func (l *Library) Invoke(req Request) (Output, error) {
	callMu.Lock()
	defer callMu.Unlock()
	if l.handle == nil {
		return Output{}, fmt.Errorf("%s is closed", l.path)
	}
	p, err := l.find(req.Recipe)
	if err != nil {
		return Output{}, err
	}

	restoreDir, err := enterDir(req.OutputDir)
	if err != nil {
		return Output{}, err
	}
	defer restoreDir()
	restoreEnv := applyEnv(req.Env, req.TempDir)
	defer restoreEnv()

	logFile, err := os.CreateTemp("", "gocpl-*.log")
	if err != nil {
		return Output{}, fmt.Errorf("create recipe log: %w", err)
	}
	logPath := logFile.Name()
	logFile.Close()
	defer os.Remove(logPath)
	clog := C.CString(logPath)
	defer C.free(unsafe.Pointer(clog))
	C.cpl_msg_set_log_name(clog)
	C.cpl_msg_set_log_level(logLevel(req.LogLevel))
	C.cpl_error_reset()

	if C.gocpl_call(C.cpl_plugin_get_init(p), p) != 0 {
		C.cpl_msg_stop_log()
		return Output{}, fmt.Errorf("init recipe %s: %s", req.Recipe, takeError())
	}
	defer C.gocpl_call(C.cpl_plugin_get_deinit(p), p)

	if err := setParams(C.gocpl_parameters(p), req.Params); err != nil {
		C.cpl_msg_stop_log()
		return Output{}, err
	}
	frames := C.cpl_frameset_new()
	for _, f := range req.Frames {
		C.cpl_frameset_insert(frames, newFrame(f))
	}
	C.gocpl_set_frames(p, frames)

	status := C.gocpl_call(C.cpl_plugin_get_exec(p), p)

	out := Output{Status: int(status)}
	if code := C.cpl_error_get_code(); code != C.CPL_ERROR_NONE {
		out.ErrorCode = int(code)
		out.ErrorMessage = C.GoString(C.cpl_error_get_message())
		out.ErrorLocation = C.GoString(C.cpl_error_get_where())
		C.cpl_error_reset()
	}
	out.Products, out.Keywords = products(C.gocpl_frames(p), req.OutputDir)
	C.cpl_frameset_delete(C.gocpl_frames(p))
	C.gocpl_set_frames(p, nil)
	C.cpl_msg_stop_log()
	if b, err := os.ReadFile(logPath); err == nil {
		out.Log = string(b)
	}
	return out, nil
}

func setParams(list *C.cpl_parameterlist, params []Param) error {
	for _, param := range params {
		cname := C.CString(param.Name)
		par := C.cpl_parameterlist_find(list, cname)
		C.free(unsafe.Pointer(cname))
		if par == nil {
			return fmt.Errorf("recipe has no parameter %s", param.Name)
		}
		var rc C.cpl_error_code
		switch param.Value.Kind {
		case "bool":
			b := C.int(0)
			if param.Value.Bool {
				b = 1
			}
			rc = C.cpl_parameter_set_bool(par, b)
		case "int":
			if param.Value.Int < math.MinInt32 || param.Value.Int > math.MaxInt32 {
				return fmt.Errorf("parameter %s: %d does not fit a C int", param.Name, param.Value.Int)
			}
			rc = C.cpl_parameter_set_int(par, C.int(param.Value.Int))
		case "float":
			if math.IsNaN(param.Value.Float) || math.IsInf(param.Value.Float, 0) {
				return fmt.Errorf("parameter %s: %v is not finite", param.Name, param.Value.Float)
			}
			rc = C.cpl_parameter_set_double(par, C.double(param.Value.Float))
		default:
			cval := C.CString(param.Value.Text)
			rc = C.cpl_parameter_set_string(par, cval)
			C.free(unsafe.Pointer(cval))
		}
		if rc != C.CPL_ERROR_NONE {
			return fmt.Errorf("set parameter %s: %s", param.Name, takeError())
		}
	}
	return nil
}

func newFrame(f Frame) *C.cpl_frame {
	frame := C.cpl_frame_new()
	cpath := C.CString(f.Path)
	ctag := C.CString(f.Tag)
	C.cpl_frame_set_filename(frame, cpath)
	C.cpl_frame_set_tag(frame, ctag)
	C.free(unsafe.Pointer(cpath))
	C.free(unsafe.Pointer(ctag))
	switch f.Group {
	case "raw":
		C.cpl_frame_set_group(frame, C.CPL_FRAME_GROUP_RAW)
	case "calib":
		C.cpl_frame_set_group(frame, C.CPL_FRAME_GROUP_CALIB)
	case "product":
		C.cpl_frame_set_group(frame, C.CPL_FRAME_GROUP_PRODUCT)
	}
	return frame
}

// products lists the product frames the recipe added and the ESO PRO and QC
// keywords of their primary headers.
func products(frames *C.cpl_frameset, dir string) ([]Frame, []Keyword) {
	if frames == nil {
		return nil, nil
	}
	var out []Frame
	var keywords []Keyword
	seen := map[string]struct{}{}
	pattern := C.CString("^ESO (PRO|QC) ")
	defer C.free(unsafe.Pointer(pattern))
	n := int(C.cpl_frameset_get_size(frames))
	for i := 0; i < n; i++ {
		frame := C.cpl_frameset_get_position(frames, C.cpl_size(i))
		if C.cpl_frame_get_group(frame) != C.CPL_FRAME_GROUP_PRODUCT {
			continue
		}
		path := C.GoString(C.cpl_frame_get_filename(frame))
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		out = append(out, Frame{Path: path, Tag: C.GoString(C.cpl_frame_get_tag(frame)), Group: "product"})

		cpath := C.CString(path)
		header := C.cpl_propertylist_load_regexp(cpath, 0, pattern, 0)
		C.free(unsafe.Pointer(cpath))
		if header == nil {
			C.cpl_error_reset()
			continue
		}
		size := int(C.cpl_propertylist_get_size(header))
		for j := 0; j < size; j++ {
			prop := C.cpl_propertylist_get(header, C.long(j))
			name := C.GoString(C.cpl_property_get_name(prop))
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			cval := C.gocpl_property_string(prop)
			kw := Keyword{Name: name, Value: C.GoString(cval)}
			C.free(unsafe.Pointer(cval))
			if comment := C.cpl_property_get_comment(prop); comment != nil {
				kw.Comment = C.GoString(comment)
			}
			keywords = append(keywords, kw)
		}
		C.cpl_propertylist_delete(header)
	}
	return out, keywords
}

func takeError() string {
	if C.cpl_error_get_code() == C.CPL_ERROR_NONE {
		return "unknown error"
	}
	msg := fmt.Sprintf("%s in %s", C.GoString(C.cpl_error_get_message()), C.GoString(C.cpl_error_get_where()))
	C.cpl_error_reset()
	return msg
}

func logLevel(level string) C.cpl_msg_severity {
	switch strings.ToLower(level) {
	case "debug", "trace":
		return C.CPL_MSG_DEBUG
	case "warn", "warning":
		return C.CPL_MSG_WARNING
	case "error":
		return C.CPL_MSG_ERROR
	case "off":
		return C.CPL_MSG_OFF
	default:
		return C.CPL_MSG_INFO
	}
}

func enterDir(dir string) (func(), error) {
	if dir == "" {
		return func() {}, nil
	}
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getwd: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("enter output dir: %w", err)
	}
	return func() { _ = os.Chdir(prev) }, nil
}

func applyEnv(env map[string]string, tempDir string) func() {
	if tempDir != "" {
		env = withEntry(env, "TMPDIR", tempDir)
	}
	type saved struct {
		value string
		set   bool
	}
	previous := make(map[string]saved, len(env))
	for k, v := range env {
		old, ok := os.LookupEnv(k)
		previous[k] = saved{value: old, set: ok}
		_ = os.Setenv(k, v)
	}
	return func() {
		for k, s := range previous {
			if s.set {
				_ = os.Setenv(k, s.value)
			} else {
				_ = os.Unsetenv(k)
			}
		}
	}
}

func withEntry(env map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out[key] = value
	return out
}
