package frame

// SearchRequestBody asks gateways on the discovery endpoint to identify
// themselves.
type SearchRequestBody struct {
	Discovery HPAI
}

func (SearchRequestBody) ServiceType() ServiceType { return SearchRequest }

func (SearchRequestBody) Len() int { return HPAISize }

func (b SearchRequestBody) AppendTo(out []byte) []byte { return b.Discovery.AppendTo(out) }

func decodeSearchRequest(r *reader) Body {
	return SearchRequestBody{Discovery: r.hpai("discovery endpoint")}
}

// SearchResponseBody is a gateway's reply to a search.
type SearchResponseBody struct {
	Control  HPAI
	Device   DeviceInfo
	Families SupportedFamilies
	Extra    []RawDIB
}

func (SearchResponseBody) ServiceType() ServiceType { return SearchResponse }

func (b SearchResponseBody) Len() int { return HPAISize + b.desc().len() }

func (b SearchResponseBody) AppendTo(out []byte) []byte {
	out = b.Control.AppendTo(out)
	return b.desc().appendTo(out)
}

func (b SearchResponseBody) validate() error { return b.desc().validate() }

func (b SearchResponseBody) desc() description {
	return description{Device: b.Device, Families: b.Families, Extra: b.Extra}
}

func decodeSearchResponse(r *reader) Body {
	ctrl := r.hpai("control endpoint")
	d := r.description()
	return SearchResponseBody{Control: ctrl, Device: d.Device, Families: d.Families, Extra: d.Extra}
}

// DescriptionRequestBody asks one gateway for its DIBs.
type DescriptionRequestBody struct {
	Control HPAI
}

func (DescriptionRequestBody) ServiceType() ServiceType { return DescriptionRequest }

func (DescriptionRequestBody) Len() int { return HPAISize }

func (b DescriptionRequestBody) AppendTo(out []byte) []byte { return b.Control.AppendTo(out) }

func decodeDescriptionRequest(r *reader) Body {
	return DescriptionRequestBody{Control: r.hpai("control endpoint")}
}

// DescriptionResponseBody carries a gateway's DIBs.
type DescriptionResponseBody struct {
	Device   DeviceInfo
	Families SupportedFamilies
	Extra    []RawDIB
}

func (DescriptionResponseBody) ServiceType() ServiceType { return DescriptionResponse }

func (b DescriptionResponseBody) Len() int { return b.desc().len() }

func (b DescriptionResponseBody) AppendTo(out []byte) []byte { return b.desc().appendTo(out) }

func (b DescriptionResponseBody) validate() error { return b.desc().validate() }

func (b DescriptionResponseBody) desc() description {
	return description{Device: b.Device, Families: b.Families, Extra: b.Extra}
}

func decodeDescriptionResponse(r *reader) Body {
	d := r.description()
	return DescriptionResponseBody{Device: d.Device, Families: d.Families, Extra: d.Extra}
}

// ConnectRequestBody opens a connection.
type ConnectRequestBody struct {
	Control HPAI
	Data    HPAI
	CRI     CRI
}

func (ConnectRequestBody) ServiceType() ServiceType { return ConnectRequest }

func (b ConnectRequestBody) Len() int { return 2*HPAISize + b.CRI.Len() }

func (b ConnectRequestBody) AppendTo(out []byte) []byte {
	out = b.Control.AppendTo(out)
	out = b.Data.AppendTo(out)
	return b.CRI.AppendTo(out)
}

func decodeConnectRequest(r *reader) Body {
	return ConnectRequestBody{
		Control: r.hpai("control endpoint"),
		Data:    r.hpai("data endpoint"),
		CRI:     r.cri(),
	}
}

// ConnectResponseBody answers a connect request. Data and CRD are only
// present when Status is E_NO_ERROR.
type ConnectResponseBody struct {
	Channel uint8
	Status  Status
	Data    HPAI
	CRD     CRD
}

func (ConnectResponseBody) ServiceType() ServiceType { return ConnectResponse }

func (b ConnectResponseBody) ChannelID() uint8 { return b.Channel }

func (b ConnectResponseBody) Len() int {
	if !b.Status.OK() {
		return 2 //nolint:mnd // channel + status
	}
	return 2 + HPAISize + b.CRD.Len()
}

func (b ConnectResponseBody) AppendTo(out []byte) []byte {
	out = append(out, b.Channel, byte(b.Status))
	if !b.Status.OK() {
		return out
	}
	out = b.Data.AppendTo(out)
	return b.CRD.AppendTo(out)
}

func decodeConnectResponse(r *reader) Body {
	b := ConnectResponseBody{
		Channel: r.u8("channel id"),
		Status:  Status(r.u8("status")),
	}
	if !b.Status.OK() {
		r.skipRest()
		return b
	}
	b.Data = r.hpai("data endpoint")
	b.CRD = r.crd()
	return b
}

// ConnectionStateRequestBody is the heartbeat.
type ConnectionStateRequestBody struct {
	Channel uint8
	Control HPAI
}

func (ConnectionStateRequestBody) ServiceType() ServiceType { return ConnectionStateRequest }

func (b ConnectionStateRequestBody) ChannelID() uint8 { return b.Channel }

func (ConnectionStateRequestBody) Len() int { return 2 + HPAISize }

func (b ConnectionStateRequestBody) AppendTo(out []byte) []byte {
	out = append(out, b.Channel, 0x00)
	return b.Control.AppendTo(out)
}

func decodeConnectionStateRequest(r *reader) Body {
	ch := r.u8("channel id")
	r.u8("reserved")
	return ConnectionStateRequestBody{Channel: ch, Control: r.hpai("control endpoint")}
}

// ConnectionStateResponseBody answers a heartbeat.
type ConnectionStateResponseBody struct {
	Channel uint8
	Status  Status
}

func (ConnectionStateResponseBody) ServiceType() ServiceType { return ConnectionStateResponse }

func (b ConnectionStateResponseBody) ChannelID() uint8 { return b.Channel }

func (ConnectionStateResponseBody) Len() int { return 2 }

func (b ConnectionStateResponseBody) AppendTo(out []byte) []byte {
	return append(out, b.Channel, byte(b.Status))
}

func decodeConnectionStateResponse(r *reader) Body {
	return ConnectionStateResponseBody{Channel: r.u8("channel id"), Status: Status(r.u8("status"))}
}

// DisconnectRequestBody closes a connection. Either side may send it.
type DisconnectRequestBody struct {
	Channel uint8
	Control HPAI
}

func (DisconnectRequestBody) ServiceType() ServiceType { return DisconnectRequest }

func (b DisconnectRequestBody) ChannelID() uint8 { return b.Channel }

func (DisconnectRequestBody) Len() int { return 2 + HPAISize }

func (b DisconnectRequestBody) AppendTo(out []byte) []byte {
	out = append(out, b.Channel, 0x00)
	return b.Control.AppendTo(out)
}

func decodeDisconnectRequest(r *reader) Body {
	ch := r.u8("channel id")
	r.u8("reserved")
	return DisconnectRequestBody{Channel: ch, Control: r.hpai("control endpoint")}
}

// DisconnectResponseBody answers a disconnect request.
type DisconnectResponseBody struct {
	Channel uint8
	Status  Status
}

func (DisconnectResponseBody) ServiceType() ServiceType { return DisconnectResponse }

func (b DisconnectResponseBody) ChannelID() uint8 { return b.Channel }

func (DisconnectResponseBody) Len() int { return 2 }

func (b DisconnectResponseBody) AppendTo(out []byte) []byte {
	return append(out, b.Channel, byte(b.Status))
}

func decodeDisconnectResponse(r *reader) Body {
	return DisconnectResponseBody{Channel: r.u8("channel id"), Status: Status(r.u8("status"))}
}
