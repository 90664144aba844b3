package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bitmark-inc/covid19-uk/pipeline"
	"github.com/bitmark-inc/covid19-uk/schema"
	"github.com/bitmark-inc/covid19-uk/store"
	"github.com/bitmark-inc/covid19-uk/utils"
)

type datasetSummary struct {
	Name    string           `json:"name"`
	Kind    schema.TableKind `json:"kind"`
	Window  int              `json:"window,omitempty"`
	Rows    int              `json:"rows"`
	Columns []schema.Column  `json:"columns"`
}

func summarize(t *schema.Table) datasetSummary {
	return datasetSummary{
		Name:    t.Name,
		Kind:    t.Kind,
		Window:  t.Window,
		Rows:    t.Len(),
		Columns: t.Columns,
	}
}

// prepared - held result, or abort when nothing is prepared yet
func (s *Server) prepared(c *gin.Context) (*pipeline.Result, bool) {
	result := s.holder.Result()
	if result == nil {
		abortWithEncoding(c, http.StatusServiceUnavailable, errorNotReady)
		return nil, false
	}
	return result, true
}

func (s *Server) release(c *gin.Context) {
	result, ok := s.prepared(c)
	if !ok {
		return
	}

	body := gin.H{
		"run_id":  result.RunID,
		"updated": s.holder.Updated().Format(time.RFC3339),
	}
	if !result.Release.IsZero() {
		body["release"] = result.Release.Format(time.RFC3339)
		body["display"] = utils.FormatRelease(result.Release)
		body["banner"] = utils.ReleaseBanner(result.Release)
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listDatasets(c *gin.Context) {
	result, ok := s.prepared(c)
	if !ok {
		return
	}

	datasets := make([]datasetSummary, 0, len(result.Order))
	for _, name := range result.Order {
		datasets = append(datasets, summarize(result.Tables[name]))
	}
	c.JSON(http.StatusOK, gin.H{"datasets": datasets})
}

// getDataset - one table as json rows keyed by column name, or as csv with format=csv
func (s *Server) getDataset(c *gin.Context) {
	var params struct {
		Format string `form:"format"`
	}
	if err := c.ShouldBindQuery(&params); err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	result, ok := s.prepared(c)
	if !ok {
		return
	}

	t, ok := result.Table(c.Param("name"))
	if !ok {
		abortWithEncoding(c, http.StatusNotFound, errorDatasetNotFound)
		return
	}

	switch params.Format {
	case "", "json":
		c.JSON(http.StatusOK, gin.H{
			"dataset": summarize(t),
			"rows":    tableRows(t),
		})
	case "csv":
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Status(http.StatusOK)
		if err := store.WriteCSV(c.Writer, t); err != nil {
			log.WithField("dataset", t.Name).Error(err)
		}
	default:
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters)
	}
}

func tableRows(t *schema.Table) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(t.Records))
	for i, r := range t.Records {
		row := make(map[string]interface{}, len(t.Columns))
		for _, col := range t.Columns {
			switch col.Kind {
			case schema.DateColumn:
				if r.Date.IsZero() {
					row[col.Name] = nil
				} else {
					row[col.Name] = r.Date.Format(schema.DateLayout)
				}
			case schema.AreaColumn:
				row[col.Name] = r.Area
			case schema.TextColumn:
				row[col.Name] = r.Labels[col.Name]
			default:
				row[col.Name] = r.Metrics[col.Name]
			}
		}
		rows[i] = row
	}
	return rows
}
