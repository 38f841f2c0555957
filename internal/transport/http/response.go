package httptransport

import "github.com/gin-gonic/gin"

// RespondError writes the flat error shape clients key on.
func RespondError(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, gin.H{"error": message})
}

// RespondProcessing acknowledges an accepted or still-running session.
func RespondProcessing(c *gin.Context, httpStatus int, sessionID string) {
	body := gin.H{"status": "processing"}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	c.JSON(httpStatus, body)
}
