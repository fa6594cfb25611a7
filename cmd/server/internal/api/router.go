package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinscribe/clinscribe/cmd/server/internal/pipeline"
)

// RegisterRoutes wires every endpoint onto the router.
func RegisterRoutes(r *gin.Engine, orc *pipeline.Orchestrator) {
	r.GET("/", HandleRoot())
	r.POST("/transcribe", HandleTranscribe(orc))
	r.POST("/extract_entities", HandleExtractEntities(orc))
	r.POST("/summarize", HandleSummarize(orc))
	r.POST("/generate_report", HandleGenerateReport(orc))
	r.GET("/download_report/:report_id", HandleDownloadReport(orc))
	r.POST("/process", HandleProcess(orc))
	r.POST("/query_knowledge_base", HandleQueryKnowledgeBase(orc))
	r.POST("/explain_medical_terms", HandleExplainTerms(orc))

	r.GET("/healthz", HandleHealthz(orc))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
