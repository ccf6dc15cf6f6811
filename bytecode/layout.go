package bytecode

import (
	"encoding/binary"
	"fmt"

	"github.com/deepnoodle-ai/riv/op"
)

// The packed in-memory layout of a function object: a header {nCodes,
// entryOffset} followed by one block per code body, each prefixed with
// {opsLen, srcLen, stackDepth, srcKey}. Offsets are byte offsets from the
// start of the image; instruction streams are padded to 4-byte alignment so
// every field read is aligned. The image is an in-memory exchange format,
// not a persistence format: pool keys inside it are only meaningful against
// the pools of the runtime that produced it.

const (
	headerWords    = 2
	blockPrefWords = 4
	wordSize       = 4
)

// Pack flattens a function object into its contiguous image.
func (f *FunctionObject) Pack() []byte {
	var out []byte
	word := func(n uint32) {
		var buf [wordSize]byte
		binary.LittleEndian.PutUint32(buf[:], n)
		out = append(out, buf[:]...)
	}
	word(uint32(len(f.codes)))
	word(uint32(headerWords * wordSize)) // entry block offset
	for _, c := range f.codes {
		word(uint32(len(c.ops)))
		word(uint32(len(c.srcIdx)))
		word(uint32(c.stackDepth))
		word(c.src)
		out = append(out, c.ops...)
		for pad := len(c.ops) % wordSize; pad != 0 && pad < wordSize; pad++ {
			out = append(out, 0)
		}
		for _, s := range c.srcIdx {
			word(s)
		}
	}
	return out
}

// Image provides read access to a packed function object, computing child
// block pointers from the recorded offsets.
type Image []byte

func (img Image) word(off int) uint32 {
	return binary.LittleEndian.Uint32(img[off:])
}

// NumCodes returns the number of code blocks in the image.
func (img Image) NumCodes() int { return int(img.word(0)) }

// EntryOffset returns the byte offset of the entry block.
func (img Image) EntryOffset() int { return int(img.word(wordSize)) }

// blockOffset walks the blocks to the i-th one.
func (img Image) blockOffset(i int) int {
	off := img.EntryOffset()
	for ; i > 0; i-- {
		opsLen := int(img.word(off))
		srcLen := int(img.word(off + wordSize))
		off += blockPrefWords*wordSize + aligned(opsLen) + srcLen*wordSize
	}
	return off
}

func aligned(n int) int {
	if rem := n % wordSize; rem != 0 {
		return n + wordSize - rem
	}
	return n
}

// CodeAt decodes the i-th code block out of the image.
func (img Image) CodeAt(i int) *CodeObject {
	off := img.blockOffset(i)
	opsLen := int(img.word(off))
	srcLen := int(img.word(off + wordSize))
	depth := int(img.word(off + 2*wordSize))
	srcKey := img.word(off + 3*wordSize)
	body := off + blockPrefWords*wordSize
	ops := append([]byte(nil), img[body:body+opsLen]...)
	srcIdx := make([]uint32, srcLen)
	srcBase := body + aligned(opsLen)
	for j := 0; j < srcLen; j++ {
		srcIdx[j] = img.word(srcBase + j*wordSize)
	}
	return &CodeObject{ops: ops, srcIdx: srcIdx, stackDepth: depth, src: srcKey}
}

// Unpack reconstructs a function object from its image. The result carries a
// fresh identity.
func Unpack(img Image) (*FunctionObject, error) {
	n := img.NumCodes()
	if n == 0 {
		return nil, fmt.Errorf("bytecode: image has no code blocks")
	}
	fn := NewFunctionObject()
	fn.ReserveEntry()
	for i := 0; i < n; i++ {
		c := img.CodeAt(i)
		for pc := 0; pc < len(c.ops); {
			code := op.Code(c.ops[pc])
			if !op.Valid(code) {
				return nil, fmt.Errorf("bytecode: invalid opcode %d in block %d", code, i)
			}
			pc += op.GetInfo(code).Size()
		}
		if i == 0 {
			fn.SetEntry(c)
		} else {
			fn.Attach(c)
		}
	}
	return fn, nil
}
