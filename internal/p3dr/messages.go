package p3dr

// Message envelopes exchanged with the registration server. Requests
// travel in a UserMessage, replies in a ServerMessage; exactly one
// member of each envelope is set. Angles travel in degrees on the
// wire.

// UserMessage is the client-to-server envelope.
type UserMessage struct {
	VersionRequest        *VersionRequest        `json:"versionRequest,omitempty"`
	OpenStreamRequest     *OpenStreamRequest     `json:"openStreamRequest,omitempty"`
	ListReferencesRequest *ListReferencesRequest `json:"listReferenceDatasetsRequest,omitempty"`
	Request               *RegistrationRequest   `json:"request,omitempty"`
}

// ServerMessage is the server-to-client envelope.
type ServerMessage struct {
	VersionResponse        *VersionResponse        `json:"versionResponse,omitempty"`
	OpenStreamResponse     *OpenStreamResponse     `json:"openStreamResponse,omitempty"`
	ListReferencesResponse *ListReferencesResponse `json:"listReferenceDatasetsResponse,omitempty"`
	Response               *RegistrationResponse   `json:"response,omitempty"`
	Error                  *RegistrationError      `json:"error,omitempty"`
}

// VersionRequest queries the server build identity.
type VersionRequest struct{}

// VersionResponse carries the server build identity.
type VersionResponse struct {
	Branch   string `json:"branch"`
	Revision string `json:"revision"`
}

// OpenStreamRequest opens a registration stream against a set of
// reference datasets.
type OpenStreamRequest struct {
	ReferenceDatasets []string `json:"reference_datasets"`
}

// OpenStreamResponse carries the id for further stream operations.
type OpenStreamResponse struct {
	StreamID int64 `json:"stream_id"`
}

// ListReferencesRequest queries the reference datasets a stream is
// configured with.
type ListReferencesRequest struct {
	StreamID int64 `json:"stream_id"`
}

// ListReferencesResponse lists a stream's reference datasets.
type ListReferencesResponse struct {
	ReferenceDatasets []string `json:"reference_datasets"`
}

// Point is a geodetic position: latitude and longitude in degrees,
// height in meters.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Height    float64 `json:"height"`
}

// Attitude is yaw, pitch, roll in degrees.
type Attitude struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// FieldOfView is horizontal and vertical field of view in degrees.
type FieldOfView struct {
	Horizontal float64 `json:"horizontal"`
	Vertical   float64 `json:"vertical"`
}

// LensParameters carries the radial distortion coefficients.
type LensParameters struct {
	K2 float64 `json:"k2"`
	K3 float64 `json:"k3"`
	K4 float64 `json:"k4"`
}

// ImageMetadata is the camera description attached to a frame.
type ImageMetadata struct {
	Position       Point          `json:"position"`
	Attitude       Attitude       `json:"attitude"`
	FOV            FieldOfView    `json:"fov"`
	LensParameters LensParameters `json:"lens_parameters"`
}

// GrayscaleImage is raw 8-bit luminance pixel data in row order.
type GrayscaleImage struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Raw    []byte `json:"raw"`
}

// Frame pairs imagery with its camera metadata.
type Frame struct {
	Metadata       ImageMetadata  `json:"metadata"`
	GrayscaleImage GrayscaleImage `json:"grayscale_image"`
}

// RegistrationRequest asks for an asynchronous registration of one
// frame on a stream.
type RegistrationRequest struct {
	StreamID int64 `json:"stream_id"`
	FrameID  int64 `json:"frame_id"`
	Frame    Frame `json:"frame"`
}

// RegistrationResponse carries the refined camera for a frame along
// with a figure of merit.
type RegistrationResponse struct {
	FrameID       int64         `json:"frame_id"`
	FigureOfMerit float64       `json:"figure_of_merit"`
	Metadata      ImageMetadata `json:"metadata"`
}

// RegistrationError reports that a frame could not be registered. The
// frame is still accounted for; only its camera is unchanged.
type RegistrationError struct {
	FrameID     int64  `json:"frame_id"`
	ErrorString string `json:"error_string"`
}
