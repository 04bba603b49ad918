package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/maintai/abtest/internal/abtest"
)

// handleClientScript serves a small browser client for the consumer API.
func (s *Server) handleClientScript(c *gin.Context) {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	serverURL := fmt.Sprintf("%s://%s", scheme, c.Request.Host)

	c.Header("Cache-Control", "public, max-age=60")
	c.Data(http.StatusOK, "application/javascript", []byte(GenerateClientScript(serverURL)))
}

// GenerateClientScript returns the client script bound to serverURL.
//
// The script keeps the visitor identifier under the same localStorage key
// the engine uses, sends it as the visitor header, marks every
// [data-abtest-experiment] element with its variant and records a
// conversion when a [data-abtest-convert] element is clicked.
func GenerateClientScript(serverURL string) string {
	return fmt.Sprintf(`(function(){
  var S='%s';
  var K='ab_test_user_id';

  var vid=localStorage.getItem(K);
  if(!vid){
    vid='user_'+Math.random().toString(36).slice(2,11)+'_'+Date.now();
    localStorage.setItem(K,vid);
  }

  function call(method,path,body){
    return fetch(S+path,{
      method:method,
      headers:{'Content-Type':'application/json','%s':vid},
      body:body?JSON.stringify(body):undefined
    }).then(function(r){return r.ok?r.json():null;});
  }

  var api={
    variant:function(id){
      return call('GET','/api/experiments/'+encodeURIComponent(id)+'/variant').then(function(r){
        return r&&r.assigned?r.variant_id:null;
      });
    },
    config:function(id){
      return call('GET','/api/experiments/'+encodeURIComponent(id)+'/config').then(function(r){
        return r?r.config:null;
      });
    },
    convert:function(id,type,value){
      return call('POST','/api/experiments/'+encodeURIComponent(id)+'/conversions',{
        type:type||'%s',
        value:value===undefined?%v:value
      });
    }
  };
  window.abtest=api;

  document.querySelectorAll('[data-abtest-experiment]').forEach(function(el){
    api.variant(el.dataset.abtestExperiment).then(function(v){
      if(v)el.dataset.abtestVariant=v;
    });
  });

  document.querySelectorAll('[data-abtest-convert]').forEach(function(el){
    el.addEventListener('click',function(){
      var value=el.dataset.abtestValue;
      api.convert(el.dataset.abtestConvert,el.dataset.abtestType,value===undefined?undefined:parseFloat(value));
    });
  });
})();`, serverURL, VisitorHeader, DefaultConversionType, abtest.DefaultConversionValue)
}
