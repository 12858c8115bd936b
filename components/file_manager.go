package components

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/samber/lo"

	"github.com/martinemde/autocycle/agentloop"
	"github.com/martinemde/autocycle/unifiedllm"
)

// FileManagerComponent gives the model read and write access to the
// workspace.
type FileManagerComponent struct {
	env ExecutionEnvironment

	mu      sync.Mutex
	written map[string]string // path -> checksum of the last write
}

// NewFileManagerComponent creates the component over env.
func NewFileManagerComponent(env ExecutionEnvironment) *FileManagerComponent {
	return &FileManagerComponent{env: env, written: map[string]string{}}
}

func (c *FileManagerComponent) Name() string { return "file_manager" }

func (c *FileManagerComponent) Messages(ctx context.Context) ([]unifiedllm.Message, error) {
	return []unifiedllm.Message{unifiedllm.SystemMessage(
		"The current working directory is " + c.env.Root() +
			". File paths you give to commands are relative to it.",
	)}, nil
}

func (c *FileManagerComponent) Commands(ctx context.Context) ([]*agentloop.Command, error) {
	return []*agentloop.Command{
		agentloop.MustCommand(
			[]string{"read_file"},
			"Read an existing file",
			[]agentloop.CommandParameter{
				agentloop.StringParam("filename", "The path of the file to read", true),
			},
			c.readFile,
		),
		agentloop.MustCommand(
			[]string{"write_file", "write_to_file", "create_file"},
			"Write a file, creating it if necessary. If the file exists, it is overwritten.",
			[]agentloop.CommandParameter{
				agentloop.StringParam("filename", "The name of the file to write to", true),
				agentloop.StringParam("contents", "The contents to write to the file", true),
			},
			c.writeFile,
		).WithValidator(c.notDuplicateWrite),
		agentloop.MustCommand(
			[]string{"list_folder"},
			"List the items in a folder",
			[]agentloop.CommandParameter{
				agentloop.StringParam("folder", "The folder to list files in", true),
			},
			c.listFolder,
		),
		agentloop.MustCommand(
			[]string{"find_files"},
			"Find files in the workspace whose path matches a glob pattern, e.g. '*.go' or 'docs/*.md'",
			[]agentloop.CommandParameter{
				agentloop.StringParam("pattern", "The glob pattern", true),
			},
			c.findFiles,
		),
	}, nil
}

func checksum(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *FileManagerComponent) readFile(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	name, _ := args.String("filename")
	data, err := c.env.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, agentloop.InvalidArgumentError("File '%s' does not exist.", name)
	}
	if err != nil {
		return nil, err
	}
	if !isText(data) {
		return nil, agentloop.InvalidArgumentError("File '%s' is not a text file (%s).", name, mimetype.Detect(data).String())
	}
	return string(data), nil
}

// isText reports whether data is some kind of text, judged by its detected
// MIME type or any of its ancestors.
func isText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func (c *FileManagerComponent) notDuplicateWrite(args agentloop.CommandArgs) (bool, string) {
	name, _ := args.String("filename")
	contents, _ := args.String("contents")
	c.mu.Lock()
	defer c.mu.Unlock()
	if sum, ok := c.written[name]; ok && sum == checksum(contents) {
		return false, fmt.Sprintf("File %s has already been updated with this content.", name)
	}
	return true, ""
}

func (c *FileManagerComponent) writeFile(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	name, _ := args.String("filename")
	contents, _ := args.String("contents")
	if err := c.env.WriteFile(name, []byte(contents)); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.written[name] = checksum(contents)
	c.mu.Unlock()
	return fmt.Sprintf("File %s has been written successfully.", name), nil
}

func (c *FileManagerComponent) listFolder(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	folder, _ := args.String("folder")
	entries, err := c.env.ListDirectory(folder, true)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, agentloop.InvalidArgumentError("Folder '%s' does not exist.", folder)
	}
	if err != nil {
		return nil, err
	}
	return lo.Map(entries, func(e DirEntry, _ int) string {
		return fmt.Sprintf("%s (%s)", e.Path, humanize.Bytes(uint64(e.Size)))
	}), nil
}

func (c *FileManagerComponent) findFiles(ctx context.Context, args agentloop.CommandArgs) (any, error) {
	pattern, _ := args.String("pattern")
	matches, err := c.env.Glob(strings.TrimPrefix(pattern, "./"))
	if err != nil {
		return nil, agentloop.InvalidArgumentError("Invalid pattern '%s': %v", pattern, err)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No files match '%s'.", pattern), nil
	}
	return matches, nil
}
