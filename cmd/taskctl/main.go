// Command taskctl manages tasks through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Antonioedwardsd/devlab/internal/client"
	"github.com/Antonioedwardsd/devlab/internal/validation"

	"github.com/spf13/pflag"
)

const usage = `Usage: taskctl [flags] <command> [command flags]

Commands:
  list    [--completed=true|false]
  get     ID
  create  --title TITLE --description TEXT [--completed]
  update  ID [--title TITLE] [--description TEXT] [--completed=true|false]
  delete  ID

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := pflag.NewFlagSet("taskctl", pflag.ContinueOnError)
	global.SetOutput(stderr)
	global.SetInterspersed(false)
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}

	baseURL := global.String("url", envOr("TASKS_URL", "http://localhost:5000"), "API base URL")
	basePath := global.String("base-path", client.DefaultBasePath, "task collection path (/api/tasks or /api/todos)")
	token := global.String("token", os.Getenv("TASKS_TOKEN"), "bearer token (defaults to $TASKS_TOKEN)")
	timeout := global.Duration("timeout", 30*time.Second, "request timeout")

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	opts := []client.Option{client.WithBasePath(*basePath)}
	if *token != "" {
		opts = append(opts, client.WithTokenSource(client.StaticToken(*token)))
	}
	c, err := client.New(*baseURL, opts...)
	if err != nil {
		fmt.Fprintf(stderr, "taskctl: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	command, rest := global.Arg(0), global.Args()[1:]
	result, err := dispatch(ctx, c, command, rest, stderr)
	if err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "taskctl %s: %v\n", command, err)
			return 2
		}
		fmt.Fprintf(stderr, "taskctl: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(stderr, "taskctl: %v\n", err)
		return 1
	}
	return 0
}

type usageError struct {
	msg string
}

func (e usageError) Error() string { return e.msg }

func dispatch(ctx context.Context, c *client.Client, command string, args []string, stderr io.Writer) (interface{}, error) {
	fs := pflag.NewFlagSet(command, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	title := fs.String("title", "", "task title")
	description := fs.String("description", "", "task description")
	completed := fs.Bool("completed", false, "completion state")

	if err := fs.Parse(args); err != nil {
		return nil, usageError{msg: err.Error()}
	}

	id := func() (string, error) {
		if fs.NArg() != 1 {
			return "", usageError{msg: "expected exactly one task ID"}
		}
		return fs.Arg(0), nil
	}

	switch command {
	case "list":
		var filter *bool
		if fs.Changed("completed") {
			filter = completed
		}
		return c.ListTasks(ctx, filter)

	case "get":
		taskID, err := id()
		if err != nil {
			return nil, err
		}
		return c.GetTask(ctx, taskID)

	case "create":
		req := validation.CreateTaskRequest{Title: title, Description: description}
		if fs.Changed("completed") {
			req.Completed = completed
		}
		return c.CreateTask(ctx, req)

	case "update":
		taskID, err := id()
		if err != nil {
			return nil, err
		}
		req := validation.UpdateTaskRequest{}
		if fs.Changed("title") {
			req.Title = title
		}
		if fs.Changed("description") {
			req.Description = description
		}
		if fs.Changed("completed") {
			req.Completed = completed
		}
		return c.UpdateTask(ctx, taskID, req)

	case "delete":
		taskID, err := id()
		if err != nil {
			return nil, err
		}
		if err := c.DeleteTask(ctx, taskID); err != nil {
			return nil, err
		}
		return map[string]string{"message": "Task deleted successfully", "id": taskID}, nil

	default:
		return nil, usageError{msg: fmt.Sprintf("unknown command %q", command)}
	}
}
