package payload

import (
	"encoding/json"
	"fmt"
)

// Watermark is stamped by the provider into every encrypted payload.
type Watermark struct {
	AppID     string `json:"appid"`
	Timestamp int64  `json:"timestamp"`
}

// Profile is the decrypted user-data payload. Fields the provider did not
// include stay empty; Raw keeps the full plaintext document.
type Profile struct {
	OpenID          string    `json:"openId,omitempty"`
	UnionID         string    `json:"unionId,omitempty"`
	NickName        string    `json:"nickName,omitempty"`
	Gender          int       `json:"gender,omitempty"`
	Language        string    `json:"language,omitempty"`
	City            string    `json:"city,omitempty"`
	Province        string    `json:"province,omitempty"`
	Country         string    `json:"country,omitempty"`
	AvatarURL       string    `json:"avatarUrl,omitempty"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	PurePhoneNumber string    `json:"purePhoneNumber,omitempty"`
	CountryCode     string    `json:"countryCode,omitempty"`
	Watermark       Watermark `json:"watermark"`

	Raw json.RawMessage `json:"-"`
}

// DecodeProfile parses plaintext and checks that the watermark names appID.
// A payload minted for another application is treated as undecryptable.
func DecodeProfile(plaintext []byte, appID string) (*Profile, error) {
	var p Profile
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("%w: plaintext is not a JSON object", ErrDecryption)
	}
	if appID != "" && p.Watermark.AppID != appID {
		return nil, fmt.Errorf("%w: watermark appid mismatch", ErrDecryption)
	}
	p.Raw = append(json.RawMessage(nil), plaintext...)
	return &p, nil
}
