package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"whiteboard/internal/input"
	"whiteboard/internal/session"
)

const usage = "commands: down x y | move x y | hover x y | up | clear | who | cursors | quit"

// driver turns text commands into pointer gestures
type driver struct {
	sess *session.Session
	out  io.Writer

	x, y float64
}

func newDriver(sess *session.Session, out io.Writer) *driver {
	return &driver{sess: sess, out: out}
}

// execute runs one command line and reports whether the client should exit
func (d *driver) execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	p := d.sess.Producer()

	switch fields[0] {
	case "down":
		ptr, err := d.pointer(fields)
		if err != nil {
			return false, err
		}
		p.Start(ctx, ptr)
	case "move":
		ptr, err := d.pointer(fields)
		if err != nil {
			return false, err
		}
		p.Move(ctx, ptr)
	case "hover":
		ptr, err := d.pointer(fields)
		if err != nil {
			return false, err
		}
		p.End()
		p.Move(ctx, ptr)
	case "up":
		p.End()
	case "clear":
		p.Clear(ctx)
	case "who":
		for _, part := range d.sess.Roster() {
			cursor := "-"
			if part.LastKnownCursor != nil {
				cursor = fmt.Sprintf("%g,%g", part.LastKnownCursor.X, part.LastKnownCursor.Y)
			}
			fmt.Fprintf(d.out, "%s\t%s\t%s\t%s\n", part.ID, part.DisplayName, part.Color, cursor)
		}
	case "cursors":
		for _, c := range d.sess.Cursors() {
			fmt.Fprintf(d.out, "%s\t%s\t%g,%g\n", c.UserID, c.DisplayName, c.X, c.Y)
		}
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q; %s", fields[0], usage)
	}
	return false, nil
}

// pointer parses "cmd x y" and derives the movement from the previous sample
func (d *driver) pointer(fields []string) (input.Pointer, error) {
	if len(fields) != 3 {
		return input.Pointer{}, fmt.Errorf("%s needs x and y", fields[0])
	}
	x, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return input.Pointer{}, fmt.Errorf("bad x %q: %w", fields[1], err)
	}
	y, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return input.Pointer{}, fmt.Errorf("bad y %q: %w", fields[2], err)
	}

	ptr := input.Pointer{ClientX: x, ClientY: y, MovementX: x - d.x, MovementY: y - d.y}
	d.x, d.y = x, y
	return ptr, nil
}
