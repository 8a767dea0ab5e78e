// Package mcp exposes a movie library as Model Context Protocol tools over
// stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hyperengineering/marquee"
)

// Server wraps the MCP server with the library tools.
type Server struct {
	store     *marquee.Store
	mcpServer *server.MCPServer
	session   *Session
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
	// Properties describes the tool's arguments by name.
	Properties map[string]any
}

type toolHandler func(ctx context.Context, args map[string]any) (*ToolResult, error)

type toolDef struct {
	tool    mcp.Tool
	handler toolHandler
}

// NewServer creates an MCP server serving store. The caller keeps ownership
// of store.
func NewServer(store *marquee.Store, version string) *Server {
	s := &Server{
		store:   store,
		session: NewSession(),
	}
	s.mcpServer = server.NewMCPServer(
		"marquee",
		version,
		server.WithToolCapabilities(true),
	)
	for _, d := range s.tools() {
		s.mcpServer.AddTool(d.tool, wrap(d.handler))
	}
	return s
}

// Run serves MCP over stdin and stdout until the input closes.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	defs := s.tools()
	out := make([]ToolInfo, len(defs))
	for i, d := range defs {
		out[i] = ToolInfo{Name: d.tool.Name, Description: d.tool.Description, Properties: d.tool.InputSchema.Properties}
	}
	return out
}

// CallTool executes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	for _, d := range s.tools() {
		if d.tool.Name == name {
			return d.handler(ctx, args)
		}
	}
	return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
}

// Session returns the server's movie reference tracker.
func (s *Server) Session() *Session { return s.session }

func (s *Server) tools() []toolDef {
	movieArg := mcp.WithString("movie",
		mcp.Description("Movie ID or session reference (M1, M2, ...) from an earlier listing"),
		mcp.Required(),
	)
	return []toolDef{
		{mcp.NewTool("marquee_list_movies",
			mcp.WithDescription("List movies in the library. Returns session references (M1, M2, ...) usable by the other tools."),
			mcp.WithString("order",
				mcp.Description("Sort by sortable title: asc or desc (default: unordered)"),
				mcp.Enum("asc", "desc"),
			),
			mcp.WithString("search",
				mcp.Description("Only titles containing this text, ignoring case and accents"),
			),
		), s.handleListMovies},
		{mcp.NewTool("marquee_add_movie",
			mcp.WithDescription("Add a movie with an optional cast in billing order."),
			mcp.WithString("title", mcp.Description("Movie title"), mcp.Required()),
			mcp.WithArray("cast",
				mcp.Description("Actor names in billing order"),
				mcp.WithStringItems(),
			),
		), s.handleAddMovie},
		{mcp.NewTool("marquee_toggle_favorite",
			mcp.WithDescription("Flip a movie's favorite flag."),
			movieArg,
		), s.handleToggleFavorite},
		{mcp.NewTool("marquee_rename_movie",
			mcp.WithDescription("Change a movie's title. The sort key is recomputed."),
			movieArg,
			mcp.WithString("title", mcp.Description("New title"), mcp.Required()),
		), s.handleRenameMovie},
		{mcp.NewTool("marquee_delete_movie",
			mcp.WithDescription("Delete a movie. Its actors stay in the library."),
			movieArg,
		), s.handleDeleteMovie},
		{mcp.NewTool("marquee_cast_add",
			mcp.WithDescription("Append an actor to a movie's cast, creating the actor if needed."),
			movieArg,
			mcp.WithString("name", mcp.Description("Actor name"), mcp.Required()),
		), s.handleCastAdd},
		{mcp.NewTool("marquee_cast_remove",
			mcp.WithDescription("Remove an actor from a movie's cast."),
			movieArg,
			mcp.WithString("name", mcp.Description("Actor name"), mcp.Required()),
		), s.handleCastRemove},
		{mcp.NewTool("marquee_library_info",
			mcp.WithDescription("Show statistics and the schema version of the open library."),
		), s.handleLibraryInfo},
		{mcp.NewTool("marquee_library_list",
			mcp.WithDescription("List the library IDs found under the data root."),
		), s.handleLibraryList},
	}
}

func wrap(h toolHandler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

func toolError(format string, args ...any) *ToolResult {
	return &ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Handlers

func (s *Server) handleListMovies(ctx context.Context, args map[string]any) (*ToolResult, error) {
	field, dir := marquee.SortNone, marquee.Unordered
	switch order, _ := args["order"].(string); order {
	case "":
	case "asc":
		field, dir = marquee.SortTitle, marquee.Ascending
	case "desc":
		field, dir = marquee.SortTitle, marquee.Descending
	default:
		return toolError("invalid order %q: must be asc or desc", order), nil
	}
	search, _ := args["search"].(string)

	movies, err := s.store.Execute(ctx, marquee.BuildFetchSpec(field, dir, search))
	if err != nil {
		return toolError("list movies failed: %v", err), nil
	}
	return &ToolResult{Content: s.formatMovies(movies)}, nil
}

func (s *Server) handleAddMovie(ctx context.Context, args map[string]any) (*ToolResult, error) {
	title, _ := args["title"].(string)
	if title == "" {
		return toolError("title is required"), nil
	}
	m, err := s.store.InsertMovie(ctx, title, toStringSlice(args["cast"]))
	if err != nil {
		return toolError("add movie failed: %v", err), nil
	}
	return &ToolResult{Content: "Added " + s.formatMovie(*m)}, nil
}

func (s *Server) handleToggleFavorite(ctx context.Context, args map[string]any) (*ToolResult, error) {
	id, res := s.movieArg(args)
	if res != nil {
		return res, nil
	}
	m, err := s.store.ToggleFavorite(ctx, id)
	if err != nil {
		return movieError("toggle favorite", id, err), nil
	}
	return &ToolResult{Content: "Updated " + s.formatMovie(*m)}, nil
}

func (s *Server) handleRenameMovie(ctx context.Context, args map[string]any) (*ToolResult, error) {
	id, res := s.movieArg(args)
	if res != nil {
		return res, nil
	}
	title, _ := args["title"].(string)
	if title == "" {
		return toolError("title is required"), nil
	}
	m, err := s.store.RenameMovie(ctx, id, title)
	if err != nil {
		return movieError("rename movie", id, err), nil
	}
	return &ToolResult{Content: "Renamed " + s.formatMovie(*m)}, nil
}

func (s *Server) handleDeleteMovie(ctx context.Context, args map[string]any) (*ToolResult, error) {
	id, res := s.movieArg(args)
	if res != nil {
		return res, nil
	}
	if err := s.store.DeleteMovie(ctx, id); err != nil {
		return movieError("delete movie", id, err), nil
	}
	s.session.Forget(id)
	return &ToolResult{Content: fmt.Sprintf("Deleted movie %s", id)}, nil
}

func (s *Server) handleCastAdd(ctx context.Context, args map[string]any) (*ToolResult, error) {
	return s.editCast(ctx, args, "add actor", s.store.AddActor)
}

func (s *Server) handleCastRemove(ctx context.Context, args map[string]any) (*ToolResult, error) {
	return s.editCast(ctx, args, "remove actor", s.store.RemoveActor)
}

func (s *Server) editCast(ctx context.Context, args map[string]any, op string, fn func(context.Context, string, string) (*marquee.Movie, error)) (*ToolResult, error) {
	id, res := s.movieArg(args)
	if res != nil {
		return res, nil
	}
	name, _ := args["name"].(string)
	if name == "" {
		return toolError("name is required"), nil
	}
	m, err := fn(ctx, id, name)
	if err != nil {
		return movieError(op, id, err), nil
	}
	return &ToolResult{Content: "Updated " + s.formatMovie(*m)}, nil
}

func (s *Server) handleLibraryInfo(ctx context.Context, args map[string]any) (*ToolResult, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return toolError("library info failed: %v", err), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Library: %s\n", s.store.Path())
	fmt.Fprintf(&sb, "  Schema: %s", st.SchemaVersion)
	if st.Relational {
		sb.WriteString(" (relational)\n")
	} else {
		sb.WriteString(" (embedded cast)\n")
	}
	fmt.Fprintf(&sb, "  Movies: %d (%d favorite)\n", st.Movies, st.Favorites)
	if st.Relational {
		fmt.Fprintf(&sb, "  Actors: %d\n", st.Actors)
		fmt.Fprintf(&sb, "  Cast links: %d\n", st.Links)
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleLibraryList(ctx context.Context, args map[string]any) (*ToolResult, error) {
	ids, err := marquee.Libraries()
	if err != nil {
		return toolError("list libraries failed: %v", err), nil
	}
	if len(ids) == 0 {
		return &ToolResult{Content: "No libraries found."}, nil
	}
	return &ToolResult{Content: "Libraries:\n  " + strings.Join(ids, "\n  ")}, nil
}

// movieArg resolves the movie argument through the session.
func (s *Server) movieArg(args map[string]any) (string, *ToolResult) {
	raw, _ := args["movie"].(string)
	if raw == "" {
		return "", toolError("movie is required")
	}
	return s.session.Lookup(raw), nil
}

func movieError(op, id string, err error) *ToolResult {
	switch {
	case errors.Is(err, marquee.ErrNotFound):
		return toolError("%s failed: movie %s not found", op, id)
	case errors.Is(err, marquee.ErrInvalidID):
		return toolError("%s failed: %q is not a movie ID or session reference", op, id)
	default:
		return toolError("%s failed: %v", op, err)
	}
}

// Formatting

func (s *Server) formatMovies(movies []marquee.Movie) string {
	if len(movies) == 0 {
		return "No movies found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d movie(s):\n\n", len(movies))
	for _, m := range movies {
		sb.WriteString(s.formatMovie(m))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (s *Server) formatMovie(m marquee.Movie) string {
	ref := s.session.Track(m.ID)
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", ref, m.Title)
	if m.Favorite {
		sb.WriteString(" (favorite)")
	}
	fmt.Fprintf(&sb, "\n    ID: %s\n", m.ID)
	if len(m.Cast) > 0 {
		fmt.Fprintf(&sb, "    Cast: %s\n", strings.Join(m.Cast, ", "))
	}
	return sb.String()
}

// toStringSlice converts a JSON array argument to []string.
func toStringSlice(v any) []string {
	switch arr := v.(type) {
	case []string:
		return arr
	case []any:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
