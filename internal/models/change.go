package models

import (
	"bytes"
	"encoding/json"
)

// DocumentChange 文档存储的写入事件（前像/后像，任意一侧可能缺失）
type DocumentChange struct {
	ID        string          `json:"id,omitempty"` // 投递ID（可选）
	Path      string          `json:"path"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	Timestamp Timestamp       `json:"timestamp"`
}

// HasBefore 前像是否存在（创建事件没有前像）
func (c *DocumentChange) HasBefore() bool {
	return present(c.Before)
}

// HasAfter 后像是否存在（删除事件没有后像）
func (c *DocumentChange) HasAfter() bool {
	return present(c.After)
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
