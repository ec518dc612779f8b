package render

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"strings"
)

const (
	md5CryptMagic   = "$1$"
	md5CryptSaltLen = 8
	md5CryptRounds  = 1000

	// crypt(3) base-64 alphabet
	cryptAlphabet = "./0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// MD5Crypt returns the md5-crypt hash ("$1$salt$hash") of password using a
// random 8 character salt. This is the encoding accepted by the firewall's
// phash fields.
func MD5Crypt(password string) (string, error) {
	salt, err := randomSalt(md5CryptSaltLen)
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return md5CryptWithSalt(password, salt), nil
}

// VerifyMD5Crypt reports whether hash is the md5-crypt hash of password.
func VerifyMD5Crypt(password, hash string) bool {
	if !strings.HasPrefix(hash, md5CryptMagic) {
		return false
	}
	rest := hash[len(md5CryptMagic):]
	salt, _, ok := strings.Cut(rest, "$")
	if !ok {
		return false
	}
	want := md5CryptWithSalt(password, salt)
	return subtle.ConstantTimeCompare([]byte(want), []byte(hash)) == 1
}

func randomSalt(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = cryptAlphabet[int(b)%len(cryptAlphabet)]
	}
	return string(buf), nil
}

func md5CryptWithSalt(password, salt string) string {
	if len(salt) > md5CryptSaltLen {
		salt = salt[:md5CryptSaltLen]
	}
	pw := []byte(password)
	s := []byte(salt)

	alt := md5.New()
	alt.Write(pw)
	alt.Write(s)
	alt.Write(pw)
	altSum := alt.Sum(nil)

	d := md5.New()
	d.Write(pw)
	d.Write([]byte(md5CryptMagic))
	d.Write(s)
	for i := len(pw); i > 0; i -= md5.Size {
		if i > md5.Size {
			d.Write(altSum)
		} else {
			d.Write(altSum[:i])
		}
	}
	for i := len(pw); i > 0; i >>= 1 {
		if i&1 != 0 {
			d.Write([]byte{0})
		} else {
			d.Write(pw[:1])
		}
	}
	final := d.Sum(nil)

	for i := 0; i < md5CryptRounds; i++ {
		r := md5.New()
		if i&1 != 0 {
			r.Write(pw)
		} else {
			r.Write(final)
		}
		if i%3 != 0 {
			r.Write(s)
		}
		if i%7 != 0 {
			r.Write(pw)
		}
		if i&1 != 0 {
			r.Write(final)
		} else {
			r.Write(pw)
		}
		final = r.Sum(nil)
	}

	var out strings.Builder
	out.WriteString(md5CryptMagic)
	out.WriteString(salt)
	out.WriteByte('$')
	encode := func(a, b, c byte, n int) {
		v := uint(a)<<16 | uint(b)<<8 | uint(c)
		for ; n > 0; n-- {
			out.WriteByte(cryptAlphabet[v&0x3f])
			v >>= 6
		}
	}
	encode(final[0], final[6], final[12], 4)
	encode(final[1], final[7], final[13], 4)
	encode(final[2], final[8], final[14], 4)
	encode(final[3], final[9], final[15], 4)
	encode(final[4], final[10], final[5], 4)
	encode(0, 0, final[11], 2)
	return out.String()
}
