// Package rpc defines the actuator control service and its gRPC plumbing.
//
// The coordinator commands actuators through homesim.ActuatorService. Each
// actuator process serves the method for its own subtype:
//
//	ControlLightBulb(LightBulbRequest) -> Response
//	ControlAC(ACRequest)               -> Response
//	ControlSprinkler(SprinklerRequest) -> Response
//	ControlDoor(DoorRequest)           -> Response
//
// Messages travel as JSON using a codec registered under the "json" content
// subtype, so the service is declared with a hand-written grpc.ServiceDesc
// rather than generated protobuf code. A Response with Success=false is a
// refusal by the actuator; transport failures surface as gRPC status errors.
package rpc
