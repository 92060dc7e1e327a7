// Package main provides C-compatible exports for the kfx library.
// Build with: go build -buildmode=c-shared -o kfx.dll
package main

/*
#include <stdlib.h>
#include <stdint.h>

// Result structure for operations that return data
typedef struct {
    char* data;
    int   data_len;
    char* error;
} KfxResult;

// Resource supplies image bytes referenced by a book's image blocks
typedef struct {
    char* id;
    char* media_type;
    char* data;
    int   data_len;
} CResource;
*/
import "C"

import (
	"unsafe"

	"github.com/logicossoftware/go-kfx"
)

func main() {}

// KfxVersion returns the container version written by this library.
//
//export KfxVersion
func KfxVersion() C.uint16_t {
	return C.uint16_t(kfx.ContainerVersion)
}

// KfxFreeResult frees memory allocated by other Kfx functions.
// Must be called to avoid memory leaks.
//
//export KfxFreeResult
func KfxFreeResult(result C.KfxResult) {
	if result.data != nil {
		C.free(unsafe.Pointer(result.data))
	}
	if result.error != nil {
		C.free(unsafe.Pointer(result.error))
	}
}

// KfxFreeString frees a C string allocated by Go.
//
//export KfxFreeString
func KfxFreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func makeResult(data []byte) C.KfxResult {
	var result C.KfxResult
	if len(data) > 0 {
		result.data = (*C.char)(C.CBytes(data))
		result.data_len = C.int(len(data))
	}
	return result
}

func makeError(err error) C.KfxResult {
	var result C.KfxResult
	result.error = C.CString(err.Error())
	return result
}

func goResources(items *C.CResource, count C.int) []kfx.Resource {
	if count <= 0 || items == nil {
		return nil
	}
	out := make([]kfx.Resource, int(count))
	for i, r := range unsafe.Slice(items, int(count)) {
		out[i] = kfx.Resource{
			ID:        C.GoString(r.id),
			MediaType: C.GoString(r.media_type),
			Data:      C.GoBytes(unsafe.Pointer(r.data), r.data_len),
		}
	}
	return out
}

// KfxBuild builds a container from a JSON book.
// Parameters:
//   - bookJSON: the book as JSON (metadata, sections, cover_image)
//   - resources: array of CResource structs appended to the book's resources (can be NULL)
//   - resourceCount: number of resources
//   - compression: 0 returns the bare container; 1=ZIP, 2=ZSTD, 3=LZ4, 4=Brotli, 5=XZ return a packed envelope
//
// Returns KfxResult with the container bytes or error. Call KfxFreeResult when done.
//
//export KfxBuild
func KfxBuild(bookJSON *C.char, resources *C.CResource, resourceCount C.int, compression C.uint16_t) C.KfxResult {
	data, err := buildBook([]byte(C.GoString(bookJSON)), goResources(resources, resourceCount), kfx.Compression(compression))
	if err != nil {
		return makeError(err)
	}
	return makeResult(data)
}

// KfxBuildSimple builds a one-section book from plain text. Blank lines
// separate paragraphs.
//
//export KfxBuildSimple
func KfxBuildSimple(title *C.char, text *C.char, textLen C.int) C.KfxResult {
	data, err := buildSimple(C.GoString(title), string(C.GoBytes(unsafe.Pointer(text), textLen)))
	if err != nil {
		return makeError(err)
	}
	return makeResult(data)
}

// KfxValidate checks a JSON book without building it.
// Returns NULL on success, or an error message string on failure.
// Call KfxFreeString on the result if non-NULL.
//
//export KfxValidate
func KfxValidate(bookJSON *C.char, resources *C.CResource, resourceCount C.int) *C.char {
	if err := validateBook([]byte(C.GoString(bookJSON)), goResources(resources, resourceCount)); err != nil {
		return C.CString(err.Error())
	}
	return nil
}

// KfxVerify decodes a container and checks its fragment graph.
// Returns KfxResult with the report as JSON or error. Call KfxFreeResult when done.
//
//export KfxVerify
func KfxVerify(data *C.char, dataLen C.int) C.KfxResult {
	out, err := verifyReport(C.GoBytes(unsafe.Pointer(data), dataLen))
	if err != nil {
		return makeError(err)
	}
	return makeResult(out)
}

// KfxUnpack extracts the container from a packed envelope.
// Returns KfxResult with the container bytes or error. Call KfxFreeResult when done.
//
//export KfxUnpack
func KfxUnpack(data *C.char, dataLen C.int) C.KfxResult {
	out, err := unpack(C.GoBytes(unsafe.Pointer(data), dataLen))
	if err != nil {
		return makeError(err)
	}
	return makeResult(out)
}

// KfxGetEntityCount returns the number of entities in a container.
// Returns -1 on error.
//
//export KfxGetEntityCount
func KfxGetEntityCount(data *C.char, dataLen C.int) C.int {
	c, err := kfx.DecodeBytes(C.GoBytes(unsafe.Pointer(data), dataLen))
	if err != nil {
		return -1
	}
	return C.int(len(c.Entities))
}
