package queue

import "github.com/nerrad567/knxnet-core/internal/knxnet/frame"

// ChannelSource reports the channel id of the current session and whether
// one is assigned.
type ChannelSource func() (uint8, bool)

// ChannelVerifier rejects inbound bodies addressed to a channel other than
// the current session's.
type ChannelVerifier struct {
	channel ChannelSource
}

// NewChannelVerifier creates a verifier reading the session channel from
// src.
func NewChannelVerifier(src ChannelSource) *ChannelVerifier {
	return &ChannelVerifier{channel: src}
}

// Exempt reports whether bodies of type st skip the channel check. These are
// exchanged before a channel exists or carry none.
func Exempt(st frame.ServiceType) bool {
	switch st {
	case frame.SearchRequest, frame.SearchResponse,
		frame.DescriptionRequest, frame.DescriptionResponse,
		frame.ConnectRequest, frame.ConnectResponse:
		return true
	}
	return st.Family() == frame.FamilyRouting
}

// Accept reports whether body may be dispatched.
func (v *ChannelVerifier) Accept(body frame.Body) bool {
	if Exempt(body.ServiceType()) {
		return true
	}
	got, ok := frame.ChannelOf(body)
	if !ok {
		return true
	}
	want, assigned := v.channel()
	return assigned && got == want
}
