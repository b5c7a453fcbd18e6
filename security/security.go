// Package security implements the Standard security handler on the read
// side: key derivation, password checks and per-object decryption.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wudi/pdfxref/ir/raw"
)

var (
	// ErrDecrypt wraps every failure to decrypt a string or stream.
	ErrDecrypt = errors.New("decryption failed")
	// ErrPassword is returned when neither the user nor owner password matches.
	ErrPassword = errors.New("invalid password")
	// ErrUnsupported marks encryption schemes this handler cannot read.
	ErrUnsupported = errors.New("unsupported encryption")
)

type Permissions struct{ Print, Modify, Copy, ModifyAnnotations, FillForms, ExtractAccessible, Assemble, PrintHighQuality bool }

type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	// Transform returns the cipher for strings and streams of one object.
	Transform(objNum, gen int) *ObjectTransform
	Permissions() Permissions
	EncryptMetadata() bool
}

type HandlerBuilder struct {
	encryptDict *raw.DictObj
	trailer     *raw.DictObj
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d *raw.DictObj) *HandlerBuilder {
	b.encryptDict = d
	return b
}
func (b *HandlerBuilder) WithTrailer(d *raw.DictObj) *HandlerBuilder { b.trailer = d; return b }
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder       { b.fileID = id; return b }

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return noEncryptionHandler{}, nil
	}
	if name := nameVal(b.encryptDict, "Filter"); name != "" && name != "Standard" {
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupported, name)
	}
	v := int64(0)
	if n, ok := numberVal(b.encryptDict, "V"); ok {
		v = n
	}
	if v == 0 {
		v = 1
	}
	if v == 3 || v > 6 {
		return nil, fmt.Errorf("%w: V=%d", ErrUnsupported, v)
	}
	r := int64(2)
	if n, ok := numberVal(b.encryptDict, "R"); ok {
		r = n
	}
	if r < 2 || r > 6 {
		return nil, fmt.Errorf("%w: R=%d", ErrUnsupported, r)
	}
	keyLen := 40
	if v >= 5 {
		keyLen = 256
	}
	if n, ok := numberVal(b.encryptDict, "Length"); ok && n > 0 && v < 5 {
		keyLen = int(n)
	}
	if v >= 4 && v < 5 && keyLen < 128 {
		keyLen = 128
	}
	if keyLen%8 != 0 || keyLen < 40 {
		return nil, fmt.Errorf("%w: key length %d", ErrUnsupported, keyLen)
	}
	owner, _ := stringBytes(b.encryptDict, "O")
	user, _ := stringBytes(b.encryptDict, "U")
	oe, _ := stringBytes(b.encryptDict, "OE")
	ue, _ := stringBytes(b.encryptDict, "UE")
	perms, _ := stringBytes(b.encryptDict, "Perms")
	pVal, _ := numberVal(b.encryptDict, "P")
	id := b.fileID
	if len(id) == 0 && b.trailer != nil {
		if arr, ok := raw.AsArray(b.trailer.KV["ID"]); ok && arr.Len() > 0 {
			if s, ok := arr.Items[0].(raw.StringObj); ok {
				id = s.Value()
			}
		}
	}
	encryptMeta := true
	if v, ok := boolVal(b.encryptDict, "EncryptMetadata"); ok {
		encryptMeta = v
	}

	baseAlgo := algoRC4
	if v >= 5 {
		baseAlgo = algoAES
	}
	var (
		cryptFilters = map[string]cryptAlgo{}
		streamAlgo   = baseAlgo
		stringAlgo   = baseAlgo
		err          error
	)
	if v >= 4 {
		if cryptFilters, err = parseCryptFilters(b.encryptDict, baseAlgo); err != nil {
			return nil, err
		}
		if streamAlgo, err = resolveCryptFilter(b.encryptDict, "StmF", cryptFilters); err != nil {
			return nil, err
		}
		if stringAlgo, err = resolveCryptFilter(b.encryptDict, "StrF", cryptFilters); err != nil {
			return nil, err
		}
	}
	return &standardHandler{
		v:           int(v),
		r:           int(r),
		lengthBits:  keyLen,
		owner:       owner,
		user:        user,
		oe:          oe,
		ue:          ue,
		perms:       perms,
		p:           int32(pVal),
		fileID:      id,
		encryptMeta: encryptMeta,
		streamAlgo:  streamAlgo,
		stringAlgo:  stringAlgo,
	}, nil
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAES
)

type standardHandler struct {
	key         []byte
	v           int
	r           int
	lengthBits  int
	owner       []byte
	user        []byte
	oe          []byte
	ue          []byte
	perms       []byte
	p           int32
	fileID      []byte
	encryptMeta bool
	authed      bool
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo
}

func (h *standardHandler) IsEncrypted() bool     { return true }
func (h *standardHandler) EncryptMetadata() bool { return h.encryptMeta }

// Authenticate tries password as the user password, then as the owner
// password.
func (h *standardHandler) Authenticate(password string) error {
	if h.r >= 5 {
		if err := h.authenticateAES256([]byte(password)); err != nil {
			return err
		}
		h.authed = true
		return nil
	}
	keyLen := h.lengthBits / 8
	key := deriveKey([]byte(password), h.owner, h.p, h.fileID, keyLen, h.r, h.encryptMeta)
	if checkUserPassword(key, h.user, h.fileID, h.r) {
		h.key, h.authed = key, true
		return nil
	}
	userPwd := recoverUserPassword([]byte(password), h.owner, keyLen, h.r)
	key = deriveKey(userPwd, h.owner, h.p, h.fileID, keyLen, h.r, h.encryptMeta)
	if checkUserPassword(key, h.user, h.fileID, h.r) {
		h.key, h.authed = key, true
		return nil
	}
	return ErrPassword
}

func (h *standardHandler) Transform(objNum, gen int) *ObjectTransform {
	return &ObjectTransform{h: h, num: objNum, gen: gen}
}

func (h *standardHandler) ensureKey() error {
	if h.authed {
		return nil
	}
	return h.Authenticate("")
}

func (h *standardHandler) Permissions() Permissions {
	return Permissions{
		Print:             h.p&0x4 != 0,
		Modify:            h.p&0x8 != 0,
		Copy:              h.p&0x10 != 0,
		ModifyAnnotations: h.p&0x20 != 0,
		FillForms:         h.p&0x100 != 0,
		ExtractAccessible: h.p&0x200 != 0,
		Assemble:          h.p&0x400 != 0,
		PrintHighQuality:  h.p&0x800 != 0,
	}
}

func (h *standardHandler) authenticateAES256(pwd []byte) error {
	if key, ok := deriveAES256User(pwd, h.user, h.ue, h.r); ok {
		h.key = key
		h.setPermsFromEncrypted()
		return nil
	}
	if key, ok := deriveAES256Owner(pwd, h.owner, h.oe, h.user, h.r); ok {
		h.key = key
		h.setPermsFromEncrypted()
		return nil
	}
	return ErrPassword
}

func (h *standardHandler) setPermsFromEncrypted() {
	if h.p != 0 || len(h.perms) == 0 {
		return
	}
	if pval, err := decryptPermsAES256(h.key, h.perms); err == nil {
		h.p = pval
	}
}

// ObjectTransform decrypts the strings and streams of one indirect object.
// It satisfies raw.Transform.
type ObjectTransform struct {
	h        *standardHandler
	num, gen int
}

func (t *ObjectTransform) DecryptString(b []byte) ([]byte, error) {
	return t.crypt(t.h.stringAlgo, b)
}

func (t *ObjectTransform) DecryptStream(b []byte) ([]byte, error) {
	return t.crypt(t.h.streamAlgo, b)
}

func (t *ObjectTransform) crypt(algo cryptAlgo, data []byte) ([]byte, error) {
	if err := t.h.ensureKey(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(t.h.key, t.num, t.gen, t.h.r, algo == algoAES)
	var (
		out []byte
		err error
	)
	if algo == algoAES {
		out, err = aesDecrypt(key, data)
	} else {
		out, err = rc4Crypt(key, data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: object %d %d: %v", ErrDecrypt, t.num, t.gen, err)
	}
	return out, nil
}

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool                  { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) Transform(int, int) *ObjectTransform { return nil }
func (noEncryptionHandler) Permissions() Permissions {
	return Permissions{Print: true, Modify: true, Copy: true, ModifyAnnotations: true, FillForms: true, ExtractAccessible: true, Assemble: true, PrintHighQuality: true}
}
func (noEncryptionHandler) EncryptMetadata() bool { return false }

// NoopHandler returns a reusable pass-through handler.
func NoopHandler() Handler { return noEncryptionHandler{} }

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	n := copy(padded, pwd)
	copy(padded[n:], passwordPadding)
	return padded
}

func truncateRev6(pwd []byte) []byte {
	if len(pwd) > 127 {
		return pwd[:127]
	}
	return pwd
}

// rev6Hash is the iterated hash of ISO 32000-2 algorithm 2.B. Revision 5
// uses a single SHA-256.
func rev6Hash(pwd, salt, extra []byte, r int) []byte {
	pwd = truncateRev6(pwd)
	data := append(append(append([]byte{}, pwd...), salt...), extra...)
	sum := sha256.Sum256(data)
	k := sum[:]
	if r < 6 {
		return k
	}
	for i := 0; ; i++ {
		seq := append(append(append([]byte{}, pwd...), k...), extra...)
		k1 := bytes.Repeat(seq, 64)
		e, err := aesCBCWithIV(k[:16], k[16:32], k1, true, false)
		if err != nil {
			return k
		}
		var mod int
		for _, c := range e[:16] {
			mod += int(c)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		default:
			s := sha512.Sum512(e)
			k = s[:]
		}
		if i >= 63 && int(e[len(e)-1]) <= i-31 {
			break
		}
	}
	return k[:32]
}

// deriveKey is algorithm 2 (file key from the user password).
func deriveKey(pwd, owner []byte, pVal int32, fileID []byte, keyLenBytes int, r int, encryptMeta bool) []byte {
	if keyLenBytes <= 0 {
		keyLenBytes = 5
	}
	if keyLenBytes > 16 {
		keyLenBytes = 16
	}
	data := make([]byte, 0, 32+len(owner)+8+len(fileID))
	data = append(data, padPassword(pwd)...)
	data = append(data, owner...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(pVal))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)
	if r >= 4 && !encryptMeta {
		data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	}
	sum := md5.Sum(data)
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key[:keyLenBytes])
			key = sum[:]
		}
	}
	return append([]byte(nil), key[:keyLenBytes]...)
}

// ownerKey is the RC4 key of algorithm 3 steps a-d.
func ownerKey(ownerPwd []byte, keyLenBytes, r int) []byte {
	sum := md5.Sum(padPassword(ownerPwd))
	key := sum[:]
	if r >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
		return key[:keyLenBytes]
	}
	return key[:5]
}

// recoverUserPassword decrypts /O with the owner password (algorithm 7).
func recoverUserPassword(ownerPwd, owner []byte, keyLenBytes, r int) []byte {
	key := ownerKey(ownerPwd, keyLenBytes, r)
	if r == 2 {
		return rc4Simple(key, owner)
	}
	out := append([]byte(nil), owner...)
	for i := 19; i >= 0; i-- {
		out = rc4Simple(xorKey(key, byte(i)), out)
	}
	return out
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i := range key {
		out[i] = key[i] ^ b
	}
	return out
}

// userEntry computes /U for a file key (algorithms 4 and 5).
func userEntry(key, fileID []byte, r int) []byte {
	if r == 2 {
		return rc4Simple(key, passwordPadding)
	}
	h := md5.Sum(append(append([]byte{}, passwordPadding...), fileID...))
	val := h[:]
	for i := 0; i < 20; i++ {
		val = rc4Simple(xorKey(key, byte(i)), val)
	}
	return append(val, make([]byte, 16)...)
}

func checkUserPassword(key, user, fileID []byte, r int) bool {
	want := userEntry(key, fileID, r)
	if r == 2 {
		return len(user) >= 32 && bytes.Equal(want[:32], user[:32])
	}
	return len(user) >= 16 && bytes.Equal(want[:16], user[:16])
}

func deriveAES256User(pwd, uEntry, ue []byte, r int) ([]byte, bool) {
	if len(uEntry) < 48 || len(ue) < 32 {
		return nil, false
	}
	if !bytes.Equal(rev6Hash(pwd, uEntry[32:40], nil, r)[:32], uEntry[:32]) {
		return nil, false
	}
	keyHash := rev6Hash(pwd, uEntry[40:48], nil, r)
	fileKey, err := aesCBCWithIV(keyHash[:32], make([]byte, aes.BlockSize), ue[:32], false, false)
	if err != nil {
		return nil, false
	}
	return fileKey, true
}

func deriveAES256Owner(pwd, oEntry, oe, uEntry []byte, r int) ([]byte, bool) {
	if len(oEntry) < 48 || len(oe) < 32 || len(uEntry) < 48 {
		return nil, false
	}
	if !bytes.Equal(rev6Hash(pwd, oEntry[32:40], uEntry[:48], r)[:32], oEntry[:32]) {
		return nil, false
	}
	keyHash := rev6Hash(pwd, oEntry[40:48], uEntry[:48], r)
	fileKey, err := aesCBCWithIV(keyHash[:32], make([]byte, aes.BlockSize), oe[:32], false, false)
	if err != nil {
		return nil, false
	}
	return fileKey, true
}

func parseCryptFilters(dict *raw.DictObj, base cryptAlgo) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cfDict, ok := raw.AsDict(dict.KV["CF"])
	if !ok {
		return out, nil
	}
	for name, obj := range cfDict.KV {
		entry, ok := raw.AsDict(obj)
		if !ok {
			return nil, fmt.Errorf("%w: crypt filter %s is not a dictionary", ErrUnsupported, name)
		}
		algo := base
		switch nameVal(entry, "CFM") {
		case "V2":
			algo = algoRC4
		case "AESV2", "AESV3":
			algo = algoAES
		case "None":
			algo = algoNone
		case "":
		default:
			return nil, fmt.Errorf("%w: crypt filter method %s", ErrUnsupported, nameVal(entry, "CFM"))
		}
		out[name] = algo
	}
	return out, nil
}

func resolveCryptFilter(dict *raw.DictObj, key string, filters map[string]cryptAlgo) (cryptAlgo, error) {
	name := nameVal(dict, key)
	if name == "" || name == "Identity" {
		return algoNone, nil
	}
	if algo, ok := filters[name]; ok {
		return algo, nil
	}
	return algoNone, fmt.Errorf("%w: crypt filter %s not defined", ErrUnsupported, name)
}

// objectKey is algorithm 1; revisions 5 and 6 use the file key directly.
func objectKey(fileKey []byte, objNum, gen int, r int, useAES bool) []byte {
	if r >= 5 {
		return fileKey
	}
	key := append([]byte{}, fileKey...)
	key = append(key, byte(objNum), byte(objNum>>8), byte(objNum>>16), byte(gen), byte(gen>>8))
	if useAES {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	hashLen := len(fileKey) + 5
	if hashLen > 16 {
		hashLen = 16
	}
	hash := md5.Sum(key)
	return hash[:hashLen]
}

func rc4Simple(key []byte, data []byte) []byte {
	out, _ := rc4Crypt(key, data)
	return out
}

func rc4Crypt(key []byte, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesDecrypt handles the IV-prefixed, PKCS#5-padded layout used for strings
// and streams.
func aesDecrypt(key []byte, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	return aesCBCWithIV(key, data[:aes.BlockSize], data[aes.BlockSize:], false, true)
}

func aesCBCWithIV(key, iv, data []byte, encrypt, padded bool) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("aes data not multiple of blocksize")
	}
	if encrypt {
		out := make([]byte, len(data))
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
		return out, nil
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	if !padded || len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("invalid aes padding")
	}
	return out[:len(out)-pad], nil
}

func decryptPermsAES256(key []byte, perms []byte) (int32, error) {
	if len(perms) < 16 {
		return 0, errors.New("perms length must be 16")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, err
	}
	out := make([]byte, 16)
	block.Decrypt(out, perms[:16])
	if string(out[9:12]) != "adb" {
		return 0, errors.New("invalid perms signature")
	}
	return int32(binary.LittleEndian.Uint32(out[0:4])), nil
}

func numberVal(dict *raw.DictObj, key string) (int64, bool) {
	if dict == nil {
		return 0, false
	}
	if n, ok := dict.KV[key].(raw.NumberObj); ok {
		return n.Int(), true
	}
	return 0, false
}

func stringBytes(dict *raw.DictObj, key string) ([]byte, bool) {
	if dict == nil {
		return nil, false
	}
	return raw.AsString(dict.KV[key])
}

func boolVal(dict *raw.DictObj, key string) (bool, bool) {
	if dict == nil {
		return false, false
	}
	b, ok := dict.KV[key].(raw.BoolObj)
	return b.V, ok
}

func nameVal(dict *raw.DictObj, key string) string {
	if dict == nil {
		return ""
	}
	n, _ := raw.AsName(dict.KV[key])
	return n
}
