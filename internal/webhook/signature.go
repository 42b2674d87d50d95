// Package webhook は決済ゲートウェイからの通知の署名検証とイベントの型を扱う。
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// 署名ヘッダ名
const SignatureHeader = "Payment-Signature"

// 許容する時刻ずれの既定値
const DefaultTolerance = 5 * time.Minute

// 検証失敗はすべてこれ1つ。理由は呼び出し側に返さない
var ErrRejected = errors.New("webhook rejected")

// "{t}.{body}" のHMAC-SHA256をhexで返す
func computeSignature(body []byte, secret string, t int64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(t, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// 署名ヘッダの値 "t=<unix秒>,v1=<hex>" を作る
func Sign(body []byte, secret string, t time.Time) string {
	ts := t.Unix()
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + hex.EncodeToString(computeSignature(body, secret, ts))
}

// 署名と時刻を検証してイベントを返す
// 副作用なし。失敗は理由によらずErrRejected
func Verify(body []byte, header string, secret string, now time.Time, tolerance time.Duration) (Event, error) {
	if secret == "" {
		return Event{}, ErrRejected
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	ts, digests, ok := parseHeader(header)
	if !ok {
		return Event{}, ErrRejected
	}

	expected := computeSignature(body, secret, ts)
	matched := false
	for _, d := range digests {
		//全部比較してから判定する
		if hmac.Equal(expected, d) {
			matched = true
		}
	}
	if !matched {
		return Event{}, ErrRejected
	}

	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(math.Ceil(tolerance.Seconds())) {
		return Event{}, ErrRejected
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, ErrRejected
	}
	if strings.TrimSpace(ev.Type) == "" {
		return Event{}, ErrRejected
	}
	return ev, nil
}

// tはちょうど1つ、v1は1つ以上。知らないキーは無視
func parseHeader(header string) (int64, [][]byte, bool) {
	var (
		ts      int64
		hasTS   bool
		digests [][]byte
	)

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, false
		}

		switch key {
		case "t":
			if hasTS {
				return 0, nil, false
			}
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n <= 0 {
				return 0, nil, false
			}
			ts, hasTS = n, true
		case "v1":
			d, err := hex.DecodeString(value)
			if err != nil || len(d) != sha256.Size {
				return 0, nil, false
			}
			digests = append(digests, d)
		}
	}

	if !hasTS || len(digests) == 0 {
		return 0, nil, false
	}
	return ts, digests, true
}
