package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/brigadepos/edgelink/internal/nodes"
)

const (
	nodeIDHeader    = "x-node-id"
	nodeTokenHeader = "x-node-token"

	// NodeContextKey is where the authenticated node descriptor is
	// stored for downstream handlers.
	NodeContextKey = "node"
)

// NodeAuth authenticates every inbound call claiming to come from an
// edge node. Credentials come from the x-node-id/x-node-token headers
// or a bearer token combined with the path-bound nodeId. Unknown node
// and bad token produce the same response shape.
func NodeAuth(svc *nodes.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		nodeID := c.GetHeader(nodeIDHeader)
		token := c.GetHeader(nodeTokenHeader)

		if token == "" {
			if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			}
		}

		pathNodeID := c.Param("nodeId")
		if nodeID == "" {
			nodeID = pathNodeID
		}

		if nodeID == "" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing node credentials"})
			return
		}

		// A call bound to a specific node must not present another
		// node's credentials.
		if pathNodeID != "" && pathNodeID != nodeID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "node id mismatch"})
			return
		}

		node, err := svc.Authenticate(c.Request.Context(), nodeID, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid node credentials"})
			return
		}

		c.Set(NodeContextKey, node)
		c.Next()
	}
}
