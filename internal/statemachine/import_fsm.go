package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// Import session states
const (
	ImportAwaitingHeaders       = "awaiting_headers"
	ImportValidatingHeaders     = "validating_headers"
	ImportStreamingRows         = "streaming_rows"
	ImportEndOfStream           = "end_of_stream"
	ImportSynchronousProcessing = "synchronous_processing"
	ImportBackgroundProcessing  = "background_processing"
	ImportResponded             = "responded"
	ImportFailed                = "failed"
)

// ImportFSM tracks one CSV import session from header receipt to response.
type ImportFSM struct {
	fsm *fsm.FSM
}

// NewImportFSM creates an import session in the awaiting_headers state.
func NewImportFSM() *ImportFSM {
	return &ImportFSM{
		fsm: fsm.NewFSM(
			ImportAwaitingHeaders,
			fsm.Events{
				{Name: "headers", Src: []string{ImportAwaitingHeaders}, Dst: ImportValidatingHeaders},
				{Name: "accept", Src: []string{ImportValidatingHeaders}, Dst: ImportStreamingRows},
				{Name: "end", Src: []string{ImportStreamingRows}, Dst: ImportEndOfStream},

				// end_of_stream → sync or background depending on volume
				{Name: "process_sync", Src: []string{ImportEndOfStream}, Dst: ImportSynchronousProcessing},
				{Name: "process_background", Src: []string{ImportEndOfStream}, Dst: ImportBackgroundProcessing},

				{Name: "respond", Src: []string{ImportSynchronousProcessing, ImportBackgroundProcessing}, Dst: ImportResponded},

				// header rejection, stream errors and resolver errors
				{Name: "fail", Src: []string{
					ImportAwaitingHeaders,
					ImportValidatingHeaders,
					ImportStreamingRows,
					ImportEndOfStream,
					ImportSynchronousProcessing,
				}, Dst: ImportFailed},
			},
			fsm.Callbacks{},
		),
	}
}

func (s *ImportFSM) fire(ctx context.Context, event string) error {
	if err := s.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("import session cannot %s from %s: %w", event, s.fsm.Current(), err)
	}
	return nil
}

// ReceiveHeaders moves the session to header validation.
func (s *ImportFSM) ReceiveHeaders(ctx context.Context) error {
	return s.fire(ctx, "headers")
}

// AcceptHeaders starts row streaming after the key column check passed.
func (s *ImportFSM) AcceptHeaders(ctx context.Context) error {
	return s.fire(ctx, "accept")
}

// EndStream marks the CSV as fully read.
func (s *ImportFSM) EndStream(ctx context.Context) error {
	return s.fire(ctx, "end")
}

// ProcessSync routes the buffered rows to in-request resolution.
func (s *ImportFSM) ProcessSync(ctx context.Context) error {
	return s.fire(ctx, "process_sync")
}

// ProcessBackground routes the buffered rows to the background worker.
func (s *ImportFSM) ProcessBackground(ctx context.Context) error {
	return s.fire(ctx, "process_background")
}

// Respond marks the response as produced.
func (s *ImportFSM) Respond(ctx context.Context) error {
	return s.fire(ctx, "respond")
}

// Fail moves the session to the terminal failed state. Failing an already
// terminal session is a no-op.
func (s *ImportFSM) Fail(ctx context.Context) {
	if s.fsm.Can("fail") {
		_ = s.fsm.Event(ctx, "fail")
	}
}

// Current returns the current state name.
func (s *ImportFSM) Current() string {
	return s.fsm.Current()
}

// Background reports whether the session was routed to the worker.
func (s *ImportFSM) Background() bool {
	return s.fsm.Current() == ImportBackgroundProcessing
}
