package attendu

import (
	"context"
	"fmt"

	"github.com/kozaktomas/attendance-kiosk/internal/constants"
)

// MarkAttendanceFromFrame submits one JPEG frame to the recognition endpoint
// of a class. Recognition failures ("no single face", "no confident match",
// engine disabled) come back as *RequestError with the server message.
func (c *Client) MarkAttendanceFromFrame(ctx context.Context, classID int64, frame []byte) (*MarkResult, error) {
	path := fmt.Sprintf("/classes/%d/attendance/mark", classID)
	return doPostFile[MarkResult](ctx, c, path, constants.FrameFieldName, constants.FrameFileName, "image/jpeg", frame)
}
