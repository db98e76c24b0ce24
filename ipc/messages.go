package ipc

// All fields use msgpack tags to give the wire format stable,
// lowerCamelCase keys independent of Go field names. These match the JSON
// wire format used elsewhere in the runtime except for the view command's
// componentId, which execctx.ViewCommand encodes as component_id in JSON.

// InvokeFrame instructs the worker to execute handlerName's source
// against panelID's current state, runtime→worker.
type InvokeFrame struct {
	Type         string         `msgpack:"type"`
	PanelID      string         `msgpack:"panelId"`
	HandlerName  string         `msgpack:"handlerName"`
	Source       string         `msgpack:"source"`
	Args         []any          `msgpack:"args"`
	State        map[string]any `msgpack:"state"`
	Capabilities []string       `msgpack:"capabilities"`
	TimeoutMs    int64          `msgpack:"timeoutMs"`
}

// NewInvokeFrame builds an InvokeFrame with its type discriminant set.
func NewInvokeFrame(panelID, handlerName, source string, args []any, state map[string]any, capabilities []string, timeoutMs int64) *InvokeFrame {
	return &InvokeFrame{
		Type:         InvokeType,
		PanelID:      panelID,
		HandlerName:  handlerName,
		Source:       source,
		Args:         args,
		State:        state,
		Capabilities: capabilities,
		TimeoutMs:    timeoutMs,
	}
}

// DecodeInvokeFrame decodes payload as an InvokeFrame.
func DecodeInvokeFrame(payload []byte) (*InvokeFrame, error) {
	var f InvokeFrame
	if err := unmarshalMsgpack(payload, &f); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode invoke frame", Err: err}
	}
	return &f, nil
}

// EncodeInvokeFrame encodes f as a length-prefixed msgpack frame.
func EncodeInvokeFrame(f *InvokeFrame) ([]byte, error) {
	payload, err := marshalMsgpack(f)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(payload), nil
}

// ResumeFrame instructs the worker to resume suspensionID with an async
// result, runtime→worker.
type ResumeFrame struct {
	Type         string `msgpack:"type"`
	SuspensionID string `msgpack:"suspensionId"`
	Success      bool   `msgpack:"success"`
	Value        any    `msgpack:"value,omitempty"`
	Error        string `msgpack:"error,omitempty"`
}

// NewResumeFrame builds a ResumeFrame with its type discriminant set.
func NewResumeFrame(suspensionID string, success bool, value any, errMsg string) *ResumeFrame {
	return &ResumeFrame{
		Type:         ResumeType,
		SuspensionID: suspensionID,
		Success:      success,
		Value:        value,
		Error:        errMsg,
	}
}

// DecodeResumeFrame decodes payload as a ResumeFrame.
func DecodeResumeFrame(payload []byte) (*ResumeFrame, error) {
	var f ResumeFrame
	if err := unmarshalMsgpack(payload, &f); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode resume frame", Err: err}
	}
	return &f, nil
}

// EncodeResumeFrame encodes f as a length-prefixed msgpack frame.
func EncodeResumeFrame(f *ResumeFrame) ([]byte, error) {
	payload, err := marshalMsgpack(f)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(payload), nil
}

// StateMutationWire mirrors execctx.StateMutation for the wire; ipc stays
// decoupled from execctx so framing has no dependency on the sandbox stack.
type StateMutationWire struct {
	Op    string `msgpack:"op"`
	Key   string `msgpack:"key"`
	Value any    `msgpack:"value,omitempty"`
}

// EmittedEventWire mirrors execctx.EmittedEvent for the wire.
type EmittedEventWire struct {
	Name    string `msgpack:"name"`
	Payload any    `msgpack:"payload"`
}

// ViewCommandWire mirrors execctx.ViewCommand for the wire.
type ViewCommandWire struct {
	ComponentID string `msgpack:"componentId"`
	Command     string `msgpack:"command"`
	Params      []any  `msgpack:"params"`
}

// SuspensionWire mirrors execctx.SuspensionDetails for the wire.
type SuspensionWire struct {
	SuspensionID string `msgpack:"suspensionId"`
	Extension    string `msgpack:"extension"`
	Method       string `msgpack:"method"`
	Params       []any  `msgpack:"params"`
}

// ResultFrame carries one ExecutionResult back to the runtime, worker→runtime.
type ResultFrame struct {
	Type           string              `msgpack:"type"`
	Status         string              `msgpack:"status"`
	ReturnValue    any                 `msgpack:"returnValue,omitempty"`
	StateMutations []StateMutationWire `msgpack:"stateMutations"`
	Events         []EmittedEventWire  `msgpack:"events"`
	ViewCommands   []ViewCommandWire   `msgpack:"viewCommands"`
	Suspension     *SuspensionWire     `msgpack:"suspension,omitempty"`
	ErrorKind      string              `msgpack:"errorKind,omitempty"`
	ErrorMessage   string              `msgpack:"errorMessage,omitempty"`
}

// DecodeResultFrame decodes payload as a ResultFrame.
func DecodeResultFrame(payload []byte) (*ResultFrame, error) {
	var f ResultFrame
	if err := unmarshalMsgpack(payload, &f); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode result frame", Err: err}
	}
	return &f, nil
}

// EncodeResultFrame encodes f as a length-prefixed msgpack frame.
func EncodeResultFrame(f *ResultFrame) ([]byte, error) {
	f.Type = ResultType
	payload, err := marshalMsgpack(f)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(payload), nil
}

