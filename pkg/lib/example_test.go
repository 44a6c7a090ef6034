package lib_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slok/clockin/pkg/lib"
)

// Example_testing shows how to use the fake backend to test code that tracks
// time without a server.
func Example_testing() {
	ctx := context.Background()

	dir, err := os.MkdirTemp("", "clockin-example-")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	client, err := lib.New(ctx, lib.Config{
		DBPath:  filepath.Join(dir, "clockin.db"),
		Backend: lib.BackendFake,
	})
	if err != nil {
		panic(err)
	}
	defer client.Close()

	if err := client.Login(ctx, lib.Credentials{UserID: "gopher"}); err != nil {
		panic(err)
	}

	if err := client.Start(ctx, lib.Project{ID: "backend", Name: "Backend"}); err != nil {
		panic(err)
	}

	st, _ := client.Status(ctx)
	fmt.Printf("running=%t project=%s confirmed=%t\n", st.Running, st.ProjectName, st.Confirmed)

	if err := client.Sync(ctx); err != nil {
		panic(err)
	}

	st, _ = client.Status(ctx)
	fmt.Printf("running=%t project=%s confirmed=%t\n", st.Running, st.ProjectName, st.Confirmed)

	task, err := client.CreateTask(ctx, lib.CreateTaskOpts{ProjectID: "backend", Name: "Review PRs"})
	if err != nil {
		panic(err)
	}
	fmt.Println("task:", task.Name)

	if err := client.Stop(ctx); err != nil {
		panic(err)
	}

	st, _ = client.Status(ctx)
	fmt.Printf("running=%t\n", st.Running)

	// Output:
	// running=true project=Backend confirmed=false
	// running=true project=Backend confirmed=true
	// task: Review PRs
	// running=false
}
