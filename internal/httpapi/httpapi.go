// Package httpapi exposes a read-only gin HTTP surface over ChainState,
// grounded on the teacher's api/server.go Server/NewServer/setupRoutes
// pattern, trimmed to the routes this parser's scope actually supports:
// health, Prometheus metrics, chain status, and colored-tx lookup. The
// teacher's mempool/NFT/FT/reindex routes have no equivalent here since
// this module never indexes mempool or contract state.
package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bsq-chain/bsqparser/internal/chainstate"
)

// Server wraps a gin.Engine bound to a single ChainState for reads.
type Server struct {
	cs     *chainstate.ChainState
	Router *gin.Engine
}

// NewServer builds a Server and registers its routes, matching the
// teacher's gin.ReleaseMode + io.Discard default-writer setup so the
// daemon's own structured logger is the only thing that writes logs.
func NewServer(cs *chainstate.ChainState) *Server {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard
	s := &Server{
		cs:     cs,
		Router: gin.Default(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.Router.GET("/healthz", s.getHealth)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.Router.GET("/status", s.getStatus)
	s.Router.GET("/tx/:id", s.getTx)
	s.Router.GET("/block/:height", s.getBlock)
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	snap := s.cs.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"height":       snap.Height,
		"tip_hash":     snap.TipHash,
		"tx_count":     snap.TxCount,
		"output_count": snap.OutputCount,
		"spent_count":  snap.SpentCount,
		"burned_total": snap.BurnedTotal,
	})
}

func (s *Server) getTx(c *gin.Context) {
	id := c.Param("id")
	tx, ok := s.cs.TxByID(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "tx not found or not colored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":           tx.ID,
		"block_height": tx.BlockHeight,
		"burned_fee":   s.cs.BurnedFee(tx.ID),
		"inputs":       tx.Inputs,
		"outputs":      tx.Outputs,
	})
}

func (s *Server) getBlock(c *gin.Context) {
	height, err := strconv.ParseUint(c.Param("height"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid height"})
		return
	}
	block, ok := s.cs.Block(uint32(height))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "block not found"})
		return
	}
	c.JSON(http.StatusOK, block)
}

// Run starts the HTTP surface, blocking until it errors or the process
// stops. It offers no way to shut the listener down; graceful shutdown
// needs an http.Server built by the caller with Router as its Handler.
// This convenience wrapper is for the common case of letting it run for
// the process lifetime.
func (s *Server) Run(addr string) error {
	return s.Router.Run(addr)
}
