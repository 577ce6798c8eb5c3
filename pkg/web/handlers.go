package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"

	"avaneesh/dnp3-outstation/pkg/agent"
	"avaneesh/dnp3-outstation/pkg/outstation"
	dnp3types "avaneesh/dnp3-outstation/pkg/types"
)

const maxJSONPatchOperations = 100

var patchTypes = sets.NewString(string(types.JSONPatchType), string(types.MergePatchType))

// InstallHandler registers the agent API on group
func InstallHandler(group *gin.RouterGroup, a *agent.Agent) {
	group.GET("/rpc/dummy", rpcDummy(a))
	group.POST("/outstation/reset", resetOutstation(a))
	group.GET("/outstation/db", displayDB(a))
	group.GET("/outstation/config", getConfig(a))
	group.PATCH("/outstation/config", patchConfig(a))
	group.GET("/outstation/connected", isConnected(a))
	group.GET("/outstation/sessions", listSessions(a))
	group.PUT("/points/:class/:index", updatePoint(a))
	group.PUT("/points", updatePoints(a))
}

func rpcDummy(a *agent.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"result": a.RPCDummy()})
	}
}

func resetOutstation(a *agent.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.ResetOutstation(); err != nil {
			klog.ErrorS(err, "Failed to reset outstation")
			c.JSON(http.StatusInternalServerError, newError(ErrCodeResetFailed, err))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func displayDB(a *agent.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, a.DisplayOutstationDB())
	}
}

func getConfig(a *agent.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, a.GetOutstationConfig())
	}
}

func isConnected(a *agent.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"connected": a.IsOutstationConnected()})
	}
}

func listSessions(a *agent.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": a.Sessions()})
	}
}

// patchConfig applies a JSON patch or merge patch to the agent config and
// resets the outstation with the result
func patchConfig(a *agent.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		contentType := c.GetHeader("Content-Type")
		if idx := strings.Index(contentType, ";"); idx > 0 {
			contentType = contentType[:idx]
		}
		if !patchTypes.Has(contentType) {
			c.Status(http.StatusUnsupportedMediaType)
			return
		}

		patchBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			klog.V(3).InfoS("Failed to read", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		versionedJS, err := json.Marshal(a.GetOutstationConfig())
		if err != nil {
			klog.V(3).InfoS("Failed to marshal", "err", err)
			c.Status(http.StatusInternalServerError)
			return
		}

		patchedJS, rerr := applyJSPatch(types.PatchType(contentType), patchBytes, versionedJS)
		if rerr != nil {
			c.JSON(http.StatusBadRequest, rerr)
			return
		}

		var cfg agent.Config
		if err := json.NewDecoder(bytes.NewReader(patchedJS)).Decode(&cfg); err != nil {
			klog.V(3).InfoS("Failed to decode", "err", err)
			c.JSON(http.StatusBadRequest, newError(ErrCodeMalformedJSON))
			return
		}
		if err := cfg.Validate(); err != nil {
			c.JSON(http.StatusUnprocessableEntity, newError(ErrCodeInvalidConfig, err))
			return
		}
		if err := a.SetConfig(cfg); err != nil {
			klog.ErrorS(err, "Failed to apply outstation config")
			c.JSON(http.StatusInternalServerError, newError(ErrCodeResetFailed, err))
			return
		}
		c.JSON(http.StatusOK, a.GetOutstationConfig())
	}
}

func applyJSPatch(patchType types.PatchType, patchBytes, versionedJS []byte) ([]byte, *ResponseError) {
	switch patchType {
	case types.JSONPatchType:
		patchObj, err := jsonpatch.DecodePatch(patchBytes)
		if err != nil {
			return nil, newError(ErrCodeMalformedJSON)
		}
		if len(patchObj) > maxJSONPatchOperations {
			klog.V(3).InfoS("Too many json patch operations", "count", len(patchObj))
			return nil, newError(ErrCodeRequestBody)
		}
		patchedJS, err := patchObj.Apply(versionedJS)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json patch", "err", err)
			return nil, newError(ErrCodeMalformedJSON)
		}
		return patchedJS, nil
	default:
		patchedJS, err := jsonpatch.MergePatch(versionedJS, patchBytes)
		if err != nil {
			klog.V(3).InfoS("Failed to apply json merge patch", "err", err)
			return nil, newError(ErrCodeMalformedJSON)
		}
		return patchedJS, nil
	}
}

type pointValue struct {
	Value any `json:"value"`
}

func updatePoint(a *agent.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		class, err := dnp3types.ParsePointClass(c.Param("class"))
		if err != nil {
			c.JSON(http.StatusNotFound, newError(ErrCodeUnknownPointClass, c.Param("class")))
			return
		}
		index, err := strconv.ParseUint(c.Param("index"), 10, 16)
		if err != nil {
			c.JSON(http.StatusBadRequest, newError(ErrCodeInvalidIndex, c.Param("index")))
			return
		}

		var body pointValue
		if err := c.ShouldBindJSON(&body); err != nil || body.Value == nil {
			klog.V(3).InfoS("Failed to parse point value", "err", err)
			c.JSON(http.StatusBadRequest, newError(ErrCodeMalformedJSON))
			return
		}

		snap, err := a.ApplyUpdate(class, uint16(index), body.Value)
		if err != nil {
			c.JSON(updateStatus(err), newError(ErrCodeUpdateRejected, err))
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func updatePoints(a *agent.Agent) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer c.Request.Body.Close()

		var updates []agent.PointUpdate
		if err := c.ShouldBindJSON(&updates); err != nil {
			klog.V(3).InfoS("Failed to parse point updates", "err", err)
			c.JSON(http.StatusBadRequest, newError(ErrCodeMalformedJSON))
			return
		}

		snap, err := a.ApplyUpdates(updates)
		if err != nil {
			c.JSON(updateStatus(err), newError(ErrCodeUpdateRejected, err))
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func updateStatus(err error) int {
	switch {
	case errors.Is(err, outstation.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, outstation.ErrNotRunning):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}
