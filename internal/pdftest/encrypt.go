package pdftest

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"encoding/binary"

	"github.com/wudi/pdfxref/ir/raw"
)

// Scheme selects the Standard handler revision an Encryption writes.
type Scheme int

const (
	RC440  Scheme = iota // V1 R2, 40-bit RC4
	RC4128               // V2 R3, 128-bit RC4
	AES128               // V4 R4, AESV2 crypt filter
)

// Permission bits of the P entry.
const (
	PermPrint             uint32 = 1 << 2
	PermModify            uint32 = 1 << 3
	PermCopy              uint32 = 1 << 4
	PermModifyAnnotations uint32 = 1 << 5
	PermFillForms         uint32 = 1 << 8
	PermExtractAccessible uint32 = 1 << 9
	PermAssemble          uint32 = 1 << 10
	PermPrintHighQuality  uint32 = 1 << 11
)

const permMask = PermPrint | PermModify | PermCopy | PermModifyAnnotations |
	PermFillForms | PermExtractAccessible | PermAssemble | PermPrintHighQuality

// PermissionBits returns P with only the allowed bits of the mask set.
func PermissionBits(allowed uint32) int32 {
	return int32(^uint32(3)&^permMask | allowed&permMask)
}

var padding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// Encryption is a Standard security handler fixture: it writes the Encrypt
// dictionary for a pair of passwords and encrypts strings and streams the
// way a producer would.
type Encryption struct {
	dict   *raw.DictObj
	key    []byte
	scheme Scheme
}

// NewEncryption derives the O and U entries and the file key. An empty
// owner password falls back to the user password.
func NewEncryption(userPwd, ownerPwd string, perms int32, fileID []byte, scheme Scheme) *Encryption {
	if ownerPwd == "" {
		ownerPwd = userPwd
	}
	v, r, keyLen := 1, 2, 5
	switch scheme {
	case RC4128:
		v, r, keyLen = 2, 3, 16
	case AES128:
		v, r, keyLen = 4, 4, 16
	}

	sum := md5.Sum(pad(ownerPwd))
	oKey := sum[:keyLen]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[:])
		}
		oKey = sum[:keyLen]
	}
	o := rc4XOR(oKey, pad(userPwd))
	if r >= 3 {
		for i := 1; i <= 19; i++ {
			o = rc4XOR(xorEach(oKey, byte(i)), o)
		}
	}

	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(perms))
	h := md5.New()
	h.Write(pad(userPwd))
	h.Write(o)
	h.Write(pBuf[:])
	h.Write(fileID)
	key := h.Sum(nil)[:keyLen]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(key)
			key = s[:keyLen]
		}
	}

	var u []byte
	if r == 2 {
		u = rc4XOR(key, padding)
	} else {
		s := md5.Sum(append(append([]byte{}, padding...), fileID...))
		u = s[:]
		for i := 0; i < 20; i++ {
			u = rc4XOR(xorEach(key, byte(i)), u)
		}
		u = append(u, make([]byte, 16)...)
	}

	d := raw.Dict()
	d.Set("Filter", raw.Name("Standard"))
	d.Set("V", raw.NumberInt(int64(v)))
	d.Set("R", raw.NumberInt(int64(r)))
	d.Set("Length", raw.NumberInt(int64(keyLen*8)))
	d.Set("O", raw.Str(o))
	d.Set("U", raw.Str(u))
	d.Set("P", raw.NumberInt(int64(perms)))
	if scheme == AES128 {
		std := raw.Dict()
		std.Set("CFM", raw.Name("AESV2"))
		std.Set("Length", raw.NumberInt(16))
		cf := raw.Dict()
		cf.Set("StdCF", std)
		d.Set("CF", cf)
		d.Set("StmF", raw.Name("StdCF"))
		d.Set("StrF", raw.Name("StdCF"))
	}
	return &Encryption{dict: d, key: key, scheme: scheme}
}

// Dict returns the Encrypt dictionary.
func (e *Encryption) Dict() *raw.DictObj { return e.dict }

// Encrypt encrypts a string or stream of object num. Strings and streams
// share one cipher in every scheme written here. AES output starts with a
// random IV.
func (e *Encryption) Encrypt(num, gen int, data []byte) []byte {
	k := append([]byte{}, e.key...)
	k = append(k, byte(num), byte(num>>8), byte(num>>16), byte(gen), byte(gen>>8))
	if e.scheme == AES128 {
		k = append(k, "sAlT"...)
	}
	sum := md5.Sum(k)
	objKey := sum[:min(len(e.key)+5, 16)]
	if e.scheme != AES128 {
		return rc4XOR(objKey, data)
	}

	block, err := aes.NewCipher(objKey)
	if err != nil {
		panic(err)
	}
	n := aes.BlockSize - len(data)%aes.BlockSize
	plain := append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
	out := make([]byte, aes.BlockSize+len(plain))
	if _, err := rand.Read(out[:aes.BlockSize]); err != nil {
		panic(err)
	}
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], plain)
	return out
}

func pad(pwd string) []byte {
	out := make([]byte, 32)
	n := copy(out, pwd)
	copy(out[n:], padding)
	return out
}

func xorEach(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i := range key {
		out[i] = key[i] ^ b
	}
	return out
}

func rc4XOR(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}
