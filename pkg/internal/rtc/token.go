// Package rtc talks to the channel-based audio/video service that both the
// call rooms and the cloud recorder run on.
package rtc

import (
	"bytes"
	"compress/zlib"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"time"
)

const tokenVersion = "007"

const serviceRtc uint16 = 1

type Privilege uint16

const (
	PrivilegeJoinChannel  Privilege = 1
	PrivilegePublishAudio Privilege = 2
	PrivilegePublishVideo Privilege = 3
	PrivilegePublishData  Privilege = 4
)

// Role picks the privileges a channel token carries.
type Role int

const (
	RoleSubscriber Role = iota
	RolePublisher
)

func (r Role) privileges() []Privilege {
	if r == RolePublisher {
		return []Privilege{PrivilegeJoinChannel, PrivilegePublishAudio, PrivilegePublishVideo, PrivilegePublishData}
	}
	return []Privilege{PrivilegeJoinChannel}
}

// TokenBuilder signs version 007 channel tokens with the project certificate.
type TokenBuilder struct {
	AppID          string
	AppCertificate string

	now  func() time.Time
	salt func() uint32
}

func NewTokenBuilder(appID, appCertificate string) *TokenBuilder {
	return &TokenBuilder{
		AppID:          appID,
		AppCertificate: appCertificate,
		now:            time.Now,
		salt:           func() uint32 { return uint32(rand.Int63n(99999999)) + 1 },
	}
}

// Build issues a token for uid on channel. A zero uid leaves the identity
// open, any other value pins the token to that uid.
func (b *TokenBuilder) Build(channel string, uid uint32, role Role, ttl time.Duration) (string, error) {
	if len(b.AppID) == 0 || len(b.AppCertificate) == 0 {
		return "", errors.New("rtc app id and certificate are required to sign tokens")
	}
	if len(channel) == 0 {
		return "", errors.New("rtc token needs a channel")
	}

	issuedAt := uint32(b.now().Unix())
	salt := b.salt()
	expire := uint32(ttl.Seconds())

	var info bytes.Buffer
	packString(&info, b.AppID)
	packUint32(&info, issuedAt)
	packUint32(&info, expire)
	packUint32(&info, salt)
	packUint16(&info, 1)

	packUint16(&info, serviceRtc)
	privileges := role.privileges()
	sort.Slice(privileges, func(i, j int) bool { return privileges[i] < privileges[j] })
	packUint16(&info, uint16(len(privileges)))
	for _, privilege := range privileges {
		packUint16(&info, uint16(privilege))
		packUint32(&info, expire)
	}
	packString(&info, channel)
	if uid == 0 {
		packString(&info, "")
	} else {
		packString(&info, strconv.FormatUint(uint64(uid), 10))
	}

	mac := hmac.New(sha256.New, signingKey(b.AppCertificate, issuedAt, salt))
	mac.Write(info.Bytes())

	var content bytes.Buffer
	packString(&content, string(mac.Sum(nil)))
	content.Write(info.Bytes())

	var compressed bytes.Buffer
	writer := zlib.NewWriter(&compressed)
	if _, err := writer.Write(content.Bytes()); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	return tokenVersion + base64.StdEncoding.EncodeToString(compressed.Bytes()), nil
}

func signingKey(certificate string, issuedAt, salt uint32) []byte {
	mac := hmac.New(sha256.New, uint32Bytes(issuedAt))
	mac.Write([]byte(certificate))
	key := mac.Sum(nil)

	mac = hmac.New(sha256.New, uint32Bytes(salt))
	mac.Write(key)
	return mac.Sum(nil)
}

func uint32Bytes(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func packUint16(buf *bytes.Buffer, v uint16) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func packUint32(buf *bytes.Buffer, v uint32) {
	_ = binary.Write(buf, binary.LittleEndian, v)
}

func packString(buf *bytes.Buffer, v string) {
	packUint16(buf, uint16(len(v)))
	buf.WriteString(v)
}
