package cacache_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gophersatwork/cacache"
	"github.com/gophersatwork/cacache/integrity"
)

func ExampleCache_Put() {
	cache := cacache.OpenTemp()

	sri, err := cache.Put("greeting", []byte("hello world"))
	if err != nil {
		panic(err)
	}
	data, err := cache.Get("greeting")
	if err != nil {
		panic(err)
	}

	fmt.Println(sri)
	fmt.Println(string(data))
	// Output:
	// sha256-uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek=
	// hello world
}

func ExampleCache_NewPut() {
	cache := cacache.OpenTemp()

	expected := integrity.FromBytes(integrity.SHA512, []byte("hello world"))
	put, err := cache.NewPut("streamed",
		cacache.WithExpectedIntegrity(expected),
		cacache.WithExpectedSize(11),
		cacache.WithMetadata(map[string]string{"source": "example"}),
	)
	if err != nil {
		panic(err)
	}

	if _, err := io.Copy(put, strings.NewReader("hello world")); err != nil {
		_ = put.Abort()
		panic(err)
	}
	sri, err := put.Commit()
	if err != nil {
		panic(err)
	}

	fmt.Println(sri.PickAlgorithm())
	// Output:
	// sha512
}

func ExampleCache_NewPut_integrityMismatch() {
	cache := cacache.OpenTemp()

	expected := integrity.FromBytes(integrity.SHA256, []byte("hello world"))
	_, err := cache.Put("key", []byte("goodbye"), cacache.WithExpectedIntegrity(expected))

	fmt.Println(errors.Is(err, cacache.ErrIntegrity))
	_, err = cache.GetEntry("key")
	fmt.Println(errors.Is(err, cacache.ErrNotFound))
	// Output:
	// true
	// true
}

func ExampleCache_NewAsyncPut() {
	cache := cacache.OpenTemp()
	ctx := context.Background()

	put, err := cache.NewAsyncPut("async")
	if err != nil {
		panic(err)
	}
	for _, chunk := range []string{"hello", " ", "world"} {
		if _, err := put.Write(ctx, []byte(chunk)); err != nil {
			_ = put.Abort()
			panic(err)
		}
	}
	sri, err := put.Commit(ctx)
	if err != nil {
		panic(err)
	}

	fmt.Println(sri)
	// Output:
	// sha256-uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek=
}
