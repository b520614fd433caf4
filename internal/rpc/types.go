package rpc

// LightBulbRequest switches a lamp. Brightness is optional.
type LightBulbRequest struct {
	ID         string   `json:"id"`
	Active     bool     `json:"active"`
	Brightness *float64 `json:"brightness,omitempty"`
}

// ACRequest switches an air conditioner and sets its target temperature.
type ACRequest struct {
	ID          string  `json:"id"`
	Active      bool    `json:"active"`
	Temperature float64 `json:"temperature"`
}

// SprinklerRequest switches a sprinkler.
type SprinklerRequest struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// DoorRequest opens or closes a door.
type DoorRequest struct {
	ID     string `json:"id"`
	IsOpen bool   `json:"is_open"`
}

// Response is returned by every actuator method. A false Success with an
// ErrorMessage is an actuator-level refusal, not a transport failure.
type Response struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// OK returns a successful response.
func OK() *Response {
	return &Response{Success: true}
}

// Refuse returns an unsuccessful response carrying msg.
func Refuse(msg string) *Response {
	return &Response{ErrorMessage: msg}
}
