package store

import (
	"context"

	"github.com/hazyhaar/clonepages/sink"
	"github.com/hazyhaar/clonepages/update"
)

var _ sink.Sink = (*Store)(nil)

// Emit implements sink.Sink. Update events are journalled; frame_ready,
// clone_error and export events update the session row. Events without a
// session id are ignored.
func (s *Store) Emit(ctx context.Context, ev sink.Event) error {
	if ev.SessionID == "" {
		return nil
	}
	switch ev.Kind {
	case sink.KindUpdate:
		if ev.Update == nil {
			return nil
		}
		_, err := s.AppendUpdate(ctx, ev.SessionID, ev.URL, update.Result{
			Update: *ev.Update, Outcome: ev.Outcome, Detail: ev.Detail,
		})
		return err
	case sink.KindFrameReady:
		return s.SetState(ctx, ev.SessionID, "READY", "")
	case sink.KindCloneError:
		return s.SetState(ctx, ev.SessionID, "IDLE", ev.Detail)
	case sink.KindExport:
		return s.RecordExport(ctx, Export{SessionID: ev.SessionID, SHA256: ev.Hash, Size: ev.Size, At: ev.At.UnixMilli()})
	}
	return nil
}
