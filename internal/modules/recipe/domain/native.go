package domain

// NativeParam is a parameter already converted to the kind the native
// library expects.
type NativeParam struct {
	Name  string
	Value Value
}

// NativeRequest is everything one native recipe call receives. Frames keep
// the caller's order and carry absolute paths.
type NativeRequest struct {
	Recipe     string
	Parameters []NativeParam
	Frames     []Frame
	OutputDir  string
	TempDir    string
	Env        map[string]string
	LogLevel   string
}

type NativeFrame struct {
	Path string
	Tag  string
}

// NativeOutput is what comes back across the boundary before collection.
// ErrorCode, ErrorMessage and ErrorLocation mirror the CPL error state left
// after the call.
type NativeOutput struct {
	Status        int
	Frames        []NativeFrame
	Keywords      []Keyword
	Log           string
	ErrorCode     int
	ErrorMessage  string
	ErrorLocation string
}

func (o NativeOutput) Failed() bool {
	return o.Status != 0 || o.ErrorCode != 0
}
