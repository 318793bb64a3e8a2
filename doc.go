/*
Package cacache provides a content-addressable disk cache for Go applications.

Data is written once and named by a digest of its own bytes. A caller-chosen
key is mapped onto that digest (plus size, time and free-form metadata) by an
index, so content can later be fetched either by key or by digest.

# Overview

Writes stream into a staging file under tmp/ while the bytes are hashed. On
commit the digest is finalized, the staging file is renamed into its
canonical content path, and only then, after the digest and size have been
checked against what the caller expected, is an index entry appended. An
index entry therefore never points at missing, partial or mismatched content.

Identical content written concurrently by several writers lands at the same
path; whichever rename happens first wins and the others treat the existing
file as success.

# Basic Usage

Opening a cache:

	cache, err := cacache.Open(".cache")
	if err != nil {
	    log.Fatalf("Failed to open cache: %v", err)
	}

Writing in one call:

	sri, err := cache.Put("hello", []byte("hello world"))

Streaming with expectations:

	put, err := cache.NewPut("report.csv",
	    cacache.WithExpectedIntegrity(want),
	    cacache.WithExpectedSize(size),
	    cacache.WithMetadata(map[string]string{"source": "nightly"}),
	)
	if err != nil {
	    return err
	}
	if _, err := io.Copy(put, r); err != nil {
	    put.Abort()
	    return err
	}
	sri, err := put.Commit()
	if errors.Is(err, cacache.ErrIntegrity) {
	    // content is on disk but not indexed
	}

NewPut returns a Writer, an io.Writer finished by Commit or Abort. A Writer
dropped without either is aborted once it is garbage collected.

Non-blocking writes use NewAsyncPut. PollWrite, PollFlush and PollCommit never
block; they return ErrWouldBlock when the background sink is busy, and Ready
signals when it is worth polling again. Write, Flush and Commit wrap the poll
calls and wait on a context.

Reading back:

	data, err := cache.Get("hello")
	data, err = cache.ReadHash(sri)

# File Structure

	.cache/
	├── content-v2/
	│   └── sha256/
	│       └── b9/
	│           └── 4d/
	│               └── 27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9
	├── index-v5/
	│   └── [xx]/[xx]/[rest of xxh64(key)]   append-only bucket files
	└── tmp/                                  staging files

# Error Handling

  - ErrIntegrity: the written content does not match WithExpectedIntegrity
  - ErrSize: the number of bytes written does not match WithExpectedSize
  - ErrNotFound: no index entry or content for the requested key or digest
  - ErrPutFinished: a handle was used after Commit or Abort
  - ErrWouldBlock: an async poll could not make progress yet

Errors from a custom Index are returned unchanged.
*/
package cacache
