package main

// tools.go: MCP tool registration wiring each tool name to its handler.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bollu/elide-sub000/internal/lean"
	"github.com/bollu/elide-sub000/internal/session"
)

// Tool argument types.

type fileArg struct {
	File string `json:"file" jsonschema:"path to the .lean file"`
}

type positionArg struct {
	File string `json:"file" jsonschema:"path to the .lean file"`
	Line *int   `json:"line,omitempty" jsonschema:"0-indexed line; defaults to the cursor line"`
	Col  *int   `json:"col,omitempty" jsonschema:"0-indexed column in codepoints; defaults to the cursor column"`
}

type textArg struct {
	File  string `json:"file" jsonschema:"path to the .lean file"`
	Line  int    `json:"line,omitempty" jsonschema:"0-indexed first line to show"`
	Count int    `json:"count,omitempty" jsonschema:"number of lines to show; 0 shows the rest of the file"`
}

type insertArg struct {
	File string `json:"file" jsonschema:"path to the .lean file"`
	Line *int   `json:"line,omitempty" jsonschema:"0-indexed line; defaults to the cursor line"`
	Col  *int   `json:"col,omitempty" jsonschema:"0-indexed column in codepoints; defaults to the cursor column"`
	Text string `json:"text" jsonschema:"text to insert; newlines split lines without copying indentation"`
}

type deleteArg struct {
	File    string `json:"file" jsonschema:"path to the .lean file"`
	Line    *int   `json:"line,omitempty" jsonschema:"0-indexed line; defaults to the cursor line"`
	Col     *int   `json:"col,omitempty" jsonschema:"0-indexed column in codepoints; defaults to the cursor column"`
	Count   int    `json:"count,omitempty" jsonschema:"number of codepoints to delete (default 1)"`
	Forward bool   `json:"forward,omitempty" jsonschema:"delete after the cursor instead of before it"`
}

type moveArg struct {
	File      string `json:"file" jsonschema:"path to the .lean file"`
	Line      *int   `json:"line,omitempty" jsonschema:"0-indexed line to move to first"`
	Col       *int   `json:"col,omitempty" jsonschema:"0-indexed column to move to first"`
	Direction string `json:"direction,omitempty" jsonschema:"one of left, right, up, down, home, end"`
	Count     int    `json:"count,omitempty" jsonschema:"number of steps (default 1)"`
}

type goalsArg struct {
	File string `json:"file" jsonschema:"path to the .lean file"`
	Line *int   `json:"line,omitempty" jsonschema:"0-indexed line; defaults to the cursor line"`
	Col  *int   `json:"col,omitempty" jsonschema:"0-indexed column in codepoints; defaults to the cursor column"`
	Full bool   `json:"full,omitempty" jsonschema:"show the full goal view instead of a delta against the previous call"`
}

type definitionArg struct {
	File string `json:"file" jsonschema:"path to the .lean file"`
	Line *int   `json:"line,omitempty" jsonschema:"0-indexed line; defaults to the cursor line"`
	Col  *int   `json:"col,omitempty" jsonschema:"0-indexed column in codepoints; defaults to the cursor column"`
	Type bool   `json:"type,omitempty" jsonschema:"jump to the definition of the type instead"`
}

type completeArg struct {
	File  string `json:"file" jsonschema:"path to the .lean file"`
	Line  *int   `json:"line,omitempty" jsonschema:"0-indexed line; defaults to the cursor line"`
	Col   *int   `json:"col,omitempty" jsonschema:"0-indexed column in codepoints; defaults to the cursor column"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of completions to list (default 20)"`
}

// moveTo places the cursor at line:col, keeping the cursor's coordinate
// for either one left out.
func moveTo(s *session.Session, line, col *int) {
	c := s.Cursor()
	if line != nil {
		c.Row = *line
	}
	if col != nil {
		c.Col = *col
	}
	s.SetCursor(c)
}

var moves = map[string]func(*session.Session){
	"left":  (*session.Session).MoveLeft,
	"right": (*session.Session).MoveRight,
	"up":    (*session.Session).MoveUp,
	"down":  (*session.Session).MoveDown,
	"home":  (*session.Session).MoveHome,
	"end":   (*session.Session).MoveEnd,
}

// run executes fn on the document's session and wraps the outcome.
func (w *workspace) run(path string, fn func(s *session.Session) (string, error)) *mcp.CallToolResult {
	var out string
	err := w.with(path, func(s *session.Session) error {
		var err error
		out, err = fn(s)
		return err
	})
	if err != nil {
		return errResult(err)
	}
	return textResult(out)
}

// edited pushes an edit to the server and reports the new cursor.
func edited(s *session.Session, what string) (string, error) {
	if err := s.Tick(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s. %s (version %d).", what, cursorText(s), s.Version()), nil
}

func cursorText(s *session.Session) string {
	c := s.Cursor()
	return fmt.Sprintf("Cursor at line %d, column %d", c.Row, c.Col)
}

func repeat(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

var errTimeout = errors.New("timed out waiting for the language server")

// info issues requests and waits for their replies.
func (w *workspace) info(ctx context.Context, s *session.Session, issue func() ([]lean.RequestID, error)) error {
	ids, err := issue()
	if err != nil {
		return err
	}
	if err := w.await(ctx, s, ids...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errTimeout
		}
		return err
	}
	return nil
}

func one(request func() (lean.RequestID, error)) func() ([]lean.RequestID, error) {
	return func() ([]lean.RequestID, error) {
		id, err := request()
		return []lean.RequestID{id}, err
	}
}

// registerTools registers all MCP tools on the server.
func registerTools(server *mcp.Server, ws *workspace) {
	// Documents.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_open",
		Description: "Open a .lean file and start a Lean language server for it. Must be called before any other operations on the file.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		if _, err := ws.open(args.File); err != nil {
			return errResult(err), nil, nil
		}
		return ws.run(args.File, func(s *session.Session) (string, error) {
			return fmt.Sprintf("Opened %s (%d lines)", s.Path(), len(s.Rows())), nil
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_close",
		Description: "Close a .lean file and stop its language server. Unsaved changes are discarded.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		if err := ws.close(args.File); err != nil {
			return errResult(err), nil, nil
		}
		return textResult("Closed " + args.File), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_text",
		Description: "Show the document's lines with 1-based line numbers. The cursor line is marked with '>', and a '^' under it marks the cursor cell when the line has wide characters.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args textArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			to := 0
			if args.Count > 0 {
				to = args.Line + args.Count
			}
			return formatRows(s, args.Line, to), nil
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_save",
		Description: "Write the document to disk if it has unsaved changes.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			saved, err := s.SaveIfDirty()
			switch {
			case err != nil:
				return "", err
			case !saved:
				return "No changes to save.", nil
			}
			return "Saved " + s.Path(), nil
		}), nil, nil
	})

	// Editing.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_insert",
		Description: "Insert text at a position (or the cursor). The cursor ends up after the inserted text.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args insertArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			moveTo(s, args.Line, args.Col)
			s.InsertText(args.Text)
			return edited(s, fmt.Sprintf("Inserted %d characters", len([]rune(args.Text))))
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_newline",
		Description: "Split the line at a position (or the cursor), carrying the line's indentation to the new line.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args positionArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			moveTo(s, args.Line, args.Col)
			s.InsertNewline()
			return edited(s, "Inserted newline")
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_delete",
		Description: "Delete characters before (or after, with forward) a position. Deleting across a line boundary joins the lines.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args deleteArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			moveTo(s, args.Line, args.Col)
			del := s.Backspace
			if args.Forward {
				del = s.DeleteForward
			}
			n := 0
			for range repeat(args.Count) {
				if !del() {
					break
				}
				n++
			}
			return edited(s, fmt.Sprintf("Deleted %d characters", n))
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_move",
		Description: "Move the cursor to a position, then optionally step it in a direction.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args moveArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			moveTo(s, args.Line, args.Col)
			if args.Direction != "" {
				move, ok := moves[strings.ToLower(args.Direction)]
				if !ok {
					return "", fmt.Errorf("unknown direction %q", args.Direction)
				}
				for range repeat(args.Count) {
					move(s)
				}
			}
			return cursorText(s) + ".", nil
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_undo",
		Description: "Undo the last group of edits.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			if !s.Undo() {
				return "Nothing to undo.", nil
			}
			return edited(s, "Undone")
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_redo",
		Description: "Redo the last undone group of edits.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			if !s.Redo() {
				return "Nothing to redo.", nil
			}
			return edited(s, "Redone")
		}), nil, nil
	})

	// Info view.
	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_goals",
		Description: "Show the tactic goals and expected type at a position (or the cursor), plus diagnostics. Hypotheses are diffed against the previous call unless full is set.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args goalsArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			moveTo(s, args.Line, args.Col)
			if err := ws.info(ctx, s, s.RequestInfoView); err != nil {
				return "", err
			}
			out := formatGoalView(ws.lastGoal[s.Path()], s, args.Full)
			ws.lastGoal[s.Path()] = s.Goal()
			return out, nil
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_hover",
		Description: "Show the type and documentation of the identifier at a position (or the cursor).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args positionArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			moveTo(s, args.Line, args.Col)
			if err := ws.info(ctx, s, one(s.RequestHover)); err != nil {
				return "", err
			}
			if h := session.FormatHover(s.Hover()); h != "" {
				return h, nil
			}
			return "No hover information.", nil
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_definition",
		Description: "Find where the identifier (or its type) at a position is defined.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args definitionArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			moveTo(s, args.Line, args.Col)
			request, result := s.RequestDefinition, s.Definitions
			if args.Type {
				request, result = s.RequestTypeDefinition, s.TypeDefinitions
			}
			if err := ws.info(ctx, s, one(request)); err != nil {
				return "", err
			}
			var sb strings.Builder
			session.FormatLocations(&sb, result())
			return sb.String(), nil
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_complete",
		Description: "List completions for the identifier prefix at a position (or the cursor).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args completeArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			moveTo(s, args.Line, args.Col)
			if err := ws.info(ctx, s, one(s.RequestCompletion)); err != nil {
				return "", err
			}
			limit := args.Limit
			if limit <= 0 {
				limit = 20
			}
			return formatCompletion(s.Completion(), limit), nil
		}), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lean_diagnostics",
		Description: "Wait for the server to finish elaborating the current text, then list errors and warnings.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args fileArg) (*mcp.CallToolResult, any, error) {
		return ws.run(args.File, func(s *session.Session) (string, error) {
			done, err := ws.awaitElaborated(ctx, s)
			if err != nil {
				return "", err
			}
			var sb strings.Builder
			session.WriteStatus(&sb, s)
			if !done {
				sb.WriteString("Timed out waiting for elaboration; diagnostics may be incomplete.\n")
			}
			if len(s.Diagnostics()) == 0 {
				sb.WriteString("\nNo diagnostics.\n")
				return sb.String(), nil
			}
			session.FormatDiagnostics(&sb, s.Diagnostics())
			return sb.String(), nil
		}), nil, nil
	})
}
