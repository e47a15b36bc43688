package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hokaccha/go-prettyjson"

	"github.com/Dicklesworthstone/sysmoni/internal/scheduler"
)

// emitOnce writes a single snapshot as indented JSON, colorized when pretty
// is set. The first snapshot has no rates yet, so it waits for the second
// successful one.
func emitOnce(ctx context.Context, updates <-chan scheduler.Update, w io.Writer, pretty bool) error {
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Snapshot == nil {
				continue
			}
			if seen++; seen < 2 {
				continue
			}
			if pretty {
				out, err := prettyjson.Marshal(u.Snapshot)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(out))
				return err
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(u.Snapshot)
		}
	}
}

// emitStream writes one JSON object per line for every snapshot until ctx
// ends.
func emitStream(ctx context.Context, updates <-chan scheduler.Update, w io.Writer) error {
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Snapshot == nil {
				continue
			}
			if err := enc.Encode(u.Snapshot); err != nil {
				return err
			}
		}
	}
}
