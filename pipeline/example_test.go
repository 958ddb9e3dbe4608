package pipeline_test

import (
	"fmt"
	"net/http"

	"github.com/reqpipe/reqpipe/pipeline"
)

func ExampleNewDescriptor() {
	d, err := pipeline.NewDescriptor(http.MethodGet, "https://api.example.com", "/v1/search",
		pipeline.WithQuery("q", "go http client"),
		pipeline.WithQuery("page", "2"),
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(d.Method())
	fmt.Println(d.URL())
	// Output:
	// GET
	// https://api.example.com/v1/search?q=go%20http%20client&page=2
}

func ExampleDescriptor_Identity() {
	d, err := pipeline.NewDescriptor(http.MethodGet, "https://api.example.com", "/v1/users",
		pipeline.WithCacheKey("users"),
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(d.Identity())
	// Output:
	// users
}

func ExampleBuild() {
	e, err := pipeline.Build(
		pipeline.WithClient(&http.Client{}),
		pipeline.WithDefaultHeader("User-Agent", "reqpipe-example"),
	)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(e != nil)
	// Output:
	// true
}
