package lexgo_test

import (
	"context"
	"fmt"

	"github.com/hupe1980/lexgo"
)

func Example() {
	ctx := context.Background()

	db, err := lexgo.InMemory().Build(ctx)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	w, err := db.Writer()
	if err != nil {
		panic(err)
	}
	_, err = w.AddDocument(map[string]string{
		"filename": "notes.txt",
		"path":     "/home/user/notes.txt",
		"content":  "the quick brown fox jumps over the lazy dog",
	})
	if err != nil {
		panic(err)
	}
	if err := w.Commit(ctx); err != nil {
		panic(err)
	}

	page, err := db.Search(ctx, "quick fox", 1, 10)
	if err != nil {
		panic(err)
	}
	for _, hit := range page.Results {
		fmt.Println(hit.Fields["path"])
	}
	// Output:
	// /home/user/notes.txt
}

func ExampleLexgo_SearchByField() {
	ctx := context.Background()

	db := lexgo.InMemory().MustBuild(ctx)
	defer db.Close()

	w, _ := db.Writer()
	_, _ = w.AddDocument(map[string]string{
		"filename": "main.go",
		"path":     "/src/main.go",
		"content":  "package main",
	})
	_ = w.Commit(ctx)

	hits, _ := db.SearchByField(ctx, "path", "/src/main.go")
	fmt.Println(len(hits), hits[0].Fields["filename"])
	// Output:
	// 1 main.go
}
