package xtream

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexString decodes JSON strings and numbers alike; panels disagree on which they send.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) ptr() *string {
	if f == "" {
		return nil
	}
	s := string(f)
	return &s
}

type authResponse struct {
	UserInfo struct {
		Auth   flexString `json:"auth"`
		Status string     `json:"status"`
	} `json:"user_info"`
}

func (a authResponse) ok() bool {
	n, err := strconv.Atoi(string(a.UserInfo.Auth))
	if err != nil || n != 1 {
		return false
	}
	return a.UserInfo.Status == "" || a.UserInfo.Status == "Active"
}

type remoteCategory struct {
	CategoryID   flexString `json:"category_id"`
	CategoryName string     `json:"category_name"`
	ParentID     flexString `json:"parent_id"`
}

type remoteStream struct {
	StreamID           flexString `json:"stream_id"`
	Name               string     `json:"name"`
	StreamIcon         string     `json:"stream_icon"`
	CategoryID         flexString `json:"category_id"`
	EpgChannelID       flexString `json:"epg_channel_id"`
	ContainerExtension string     `json:"container_extension"`
}
