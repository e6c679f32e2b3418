package service

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// providerRef 渠道对象引用，兼容 "id" 字符串、展开后的 {"id": ...} 对象和 null
type providerRef string

func (r *providerRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = providerRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = providerRef(obj.ID)
	return nil
}

func (r providerRef) String() string {
	return string(r)
}

// providerTime 兼容 unix 秒 / 毫秒、RFC3339 字符串、空串和 null
type providerTime struct {
	time.Time
}

func (t *providerTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = fromUnix(n)
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	if n == 0 {
		t.Time = time.Time{}
		return nil
	}
	t.Time = fromUnix(n)
	return nil
}

// Ptr 零值返回 nil
func (t providerTime) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

func fromUnix(n int64) time.Time {
	// 13 位按毫秒处理
	if n > 1e12 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// providerMetadata 渠道 metadata，非字符串的值（数字、布尔、对象）转成字符串，null 丢弃
type providerMetadata map[string]string

func (m *providerMetadata) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(providerMetadata, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		switch {
		case len(v) == 0 || bytes.Equal(v, []byte("null")):
			continue
		case v[0] == '"':
			var str string
			if err := json.Unmarshal(v, &str); err != nil {
				return err
			}
			out[k] = str
		default:
			// 数字保留原文，避免 float 格式化成科学计数法
			out[k] = string(v)
		}
	}
	*m = out
	return nil
}

// checkoutMetadata 创建 checkout 时写入的 metadata
type checkoutMetadata struct {
	UserID        string
	BillingPeriod string
	PlanTier      string
	Credits       int64
}

func parseMetadata(md map[string]string) checkoutMetadata {
	m := checkoutMetadata{
		UserID:        strings.TrimSpace(md["userId"]),
		BillingPeriod: strings.TrimSpace(md["billingPeriod"]),
		PlanTier:      strings.ToLower(strings.TrimSpace(md["planTier"])),
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(md["credits"]), 10, 64); err == nil {
		m.Credits = n
	}
	return m
}

func (m checkoutMetadata) complete() bool {
	return m.UserID != "" && m.BillingPeriod != "" && m.PlanTier != ""
}

// mergeMetadata 后者优先
func mergeMetadata(mds ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, md := range mds {
		for k, v := range md {
			if v != "" {
				out[k] = v
			}
		}
	}
	return out
}
